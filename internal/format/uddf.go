// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"encoding/xml"
	"fmt"
	"math"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

const (
	uddfVersion = "3.2.1"
	// uddfTimeLayout is the timezone-naive datetime form; sources that
	// supply an offset are parsed with RFC 3339 first.
	uddfTimeLayout = "2006-01-02T15:04:05"
	kelvinOffset   = 273.15
)

// UDDF reads and writes the Universal Dive Data Format, the structured
// markup interchange format most logbook applications accept. It is also
// the normalize path: a log parsed from UDDF can be re-validated and
// re-serialized without loss of canonical fields.
type UDDF struct {
	cfg types.Config

	// Now supplies the generator timestamp; tests substitute a fixed
	// clock to keep output byte-identical.
	Now func() time.Time
}

// NewUDDF returns the UDDF codec for cfg.
func NewUDDF(cfg types.Config) *UDDF {
	return &UDDF{cfg: cfg, Now: time.Now}
}

// Name returns the format tag.
func (f *UDDF) Name() string { return "uddf" }

// Extensions returns the file extensions the format is inferred from.
func (f *UDDF) Extensions() []string { return []string{".uddf"} }

// Document structure. Unknown elements are ignored by the decoder, which
// is exactly the tolerance the format needs: many producers omit or add
// sub-elements freely.

type uddfDoc struct {
	XMLName     xml.Name       `xml:"uddf"`
	Version     string         `xml:"version,attr"`
	Generator   *uddfGenerator `xml:"generator"`
	Diver       *uddfDiver     `xml:"diver"`
	DiveSite    *uddfDiveSite  `xml:"divesite"`
	GasDefs     *uddfGasDefs   `xml:"gasdefinitions"`
	ProfileData *uddfProfile   `xml:"profiledata"`
}

type uddfGenerator struct {
	Name     string `xml:"name"`
	Version  string `xml:"version,omitempty"`
	DateTime string `xml:"datetime,omitempty"`
}

type uddfDiver struct {
	Owner   *uddfOwner  `xml:"owner"`
	Buddies []uddfBuddy `xml:"buddy"`
}

type uddfOwner struct {
	ID        string         `xml:"id,attr"`
	Personal  uddfPersonal   `xml:"personal"`
	Equipment *uddfEquipment `xml:"equipment"`
}

type uddfPersonal struct {
	FirstName string `xml:"firstname"`
	LastName  string `xml:"lastname"`
}

type uddfEquipment struct {
	Computers []uddfComputer `xml:"divecomputer"`
}

type uddfComputer struct {
	ID           string `xml:"id,attr"`
	Name         string `xml:"name,omitempty"`
	Manufacturer string `xml:"manufacturer,omitempty"`
	Serial       string `xml:"serialnumber,omitempty"`
}

type uddfBuddy struct {
	ID       string       `xml:"id,attr"`
	Personal uddfPersonal `xml:"personal"`
}

type uddfDiveSite struct {
	Sites []uddfSite `xml:"site"`
}

type uddfSite struct {
	ID        string         `xml:"id,attr"`
	Name      string         `xml:"name,omitempty"`
	Geography *uddfGeography `xml:"geography"`
}

type uddfGeography struct {
	Location  string       `xml:"location,omitempty"`
	Latitude  *float64     `xml:"latitude"`
	Longitude *float64     `xml:"longitude"`
	Address   *uddfAddress `xml:"address"`
}

type uddfAddress struct {
	Street   string `xml:"street,omitempty"`
	City     string `xml:"city,omitempty"`
	Province string `xml:"province,omitempty"`
	Country  string `xml:"country,omitempty"`
}

type uddfGasDefs struct {
	Mixes []uddfMix `xml:"mix"`
}

type uddfMix struct {
	ID   string  `xml:"id,attr"`
	Name string  `xml:"name"`
	O2   float64 `xml:"o2"`
	N2   float64 `xml:"n2"`
	He   float64 `xml:"he,omitempty"`
}

type uddfProfile struct {
	Groups []uddfGroup `xml:"repetitiongroup"`
}

type uddfGroup struct {
	ID    string     `xml:"id,attr,omitempty"`
	Dives []uddfDive `xml:"dive"`
}

type uddfDive struct {
	ID       string         `xml:"id,attr,omitempty"`
	Before   uddfInfoBefore `xml:"informationbeforedive"`
	Samples  *uddfSamples   `xml:"samples"`
	TankData []uddfTankData `xml:"tankdata"`
	After    *uddfInfoAfter `xml:"informationafterdive"`
}

type uddfInfoBefore struct {
	Links      []uddfLink `xml:"link"`
	DiveNumber int        `xml:"divenumber,omitempty"`
	DateTime   string     `xml:"datetime,omitempty"`
	AirTemp    *float64   `xml:"airtemperature"`
}

type uddfLink struct {
	Ref string `xml:"ref,attr"`
}

type uddfSamples struct {
	Waypoints []uddfWaypoint `xml:"waypoint"`
}

type uddfWaypoint struct {
	DiveTime     *float64  `xml:"divetime"`
	Depth        *float64  `xml:"depth"`
	Temperature  *float64  `xml:"temperature"`
	TankPressure *float64  `xml:"tankpressure"`
	SwitchMix    *uddfLink `xml:"switchmix"`
	Alarms       []string  `xml:"alarm"`
}

type uddfTankData struct {
	Link          *uddfLink `xml:"link"`
	PressureBegin *float64  `xml:"tankpressurebegin"`
	PressureEnd   *float64  `xml:"tankpressureend"`
}

type uddfInfoAfter struct {
	GreatestDepth *float64           `xml:"greatestdepth"`
	AvgDepth      *float64           `xml:"averagedepth"`
	Duration      *float64           `xml:"diveduration"`
	LowestTemp    *float64           `xml:"lowesttemperature"`
	Notes         *uddfNotes         `xml:"notes"`
	EquipmentUsed *uddfEquipmentUsed `xml:"equipmentused"`
}

type uddfNotes struct {
	Para string `xml:"para"`
}

type uddfEquipmentUsed struct {
	Links        []uddfLink `xml:"link"`
	LeadQuantity *int       `xml:"leadquantity"`
}

// uddfRefs resolves @id references collected from the document head.
type uddfRefs struct {
	mixes     map[string]string
	sites     map[string]types.Site
	buddies   map[string]string
	computers map[string]types.Computer
}

// Parse decodes a UDDF document. Missing optional sub-elements are
// tolerated; per-dive failures follow the strict/lenient policy.
func (f *UDDF) Parse(data []byte, source string, opts Options) (*types.DiveLog, error) {
	var doc uddfDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: f.Name(), Location: "document", Reason: "malformed markup", Err: err}
	}

	log := newLog(f.Name(), source)
	refs := f.collectRefs(log, &doc)

	if doc.ProfileData == nil {
		return log, nil
	}
	diveNo := 0
	for _, group := range doc.ProfileData.Groups {
		for i := range group.Dives {
			diveNo++
			dive, err := f.parseDive(log, &group.Dives[i], refs, diveNo)
			if err == nil {
				if violations := types.Validate(*dive); len(violations) > 0 {
					err = &ValidationError{Violations: violations}
				}
			}
			if err != nil {
				if opts.Strict {
					return nil, &ParseError{
						Format:   f.Name(),
						Location: fmt.Sprintf("dive %d", diveNo),
						Reason:   "invalid dive element",
						Err:      err,
					}
				}
				note := fmt.Sprintf("dive %d: %v", diveNo, err)
				log.Source.Skipped = append(log.Source.Skipped, note)
				opts.Warnf("%s: %s", source, note)
				continue
			}
			log.Dives = append(log.Dives, *dive)
		}
	}
	return log, nil
}

// collectRefs reads the document head sections (owner equipment,
// buddies, sites, gas definitions) into the log's mix table and the
// reference map dives link against.
func (f *UDDF) collectRefs(log *types.DiveLog, doc *uddfDoc) uddfRefs {
	refs := uddfRefs{
		mixes:     map[string]string{},
		sites:     map[string]types.Site{},
		buddies:   map[string]string{},
		computers: map[string]types.Computer{},
	}

	if doc.Diver != nil {
		if doc.Diver.Owner != nil && doc.Diver.Owner.Equipment != nil {
			for _, pdc := range doc.Diver.Owner.Equipment.Computers {
				refs.computers[pdc.ID] = types.Computer{
					Manufacturer: pdc.Manufacturer,
					Model:        pdc.Name,
					Serial:       pdc.Serial,
				}
			}
		}
		for _, buddy := range doc.Diver.Buddies {
			name := buddy.Personal.FirstName
			if buddy.Personal.LastName != "" {
				if name != "" {
					name += " "
				}
				name += buddy.Personal.LastName
			}
			refs.buddies[buddy.ID] = name
		}
	}

	if doc.DiveSite != nil {
		for _, s := range doc.DiveSite.Sites {
			site := types.Site{Name: s.Name}
			if geo := s.Geography; geo != nil {
				site.Location = geo.Location
				site.Lat = geo.Latitude
				site.Lon = geo.Longitude
				if addr := geo.Address; addr != nil {
					site.City = addr.City
					site.Province = addr.Province
					site.Country = addr.Country
				}
			}
			refs.sites[s.ID] = site
		}
	}

	if doc.GasDefs != nil {
		for _, m := range doc.GasDefs.Mixes {
			mix := types.GasMix{Name: m.Name, O2: m.O2, N2: m.N2, He: m.He}
			if mix.Name == "" {
				mix.Name = m.ID
			}
			if mix.N2 == 0 && mix.O2 > 0 {
				mix.N2 = 1 - (mix.O2 + mix.He)
			}
			added := log.AddMix(mix)
			refs.mixes[m.ID] = added.Name
		}
	}
	return refs
}

func (f *UDDF) parseDive(log *types.DiveLog, elt *uddfDive, refs uddfRefs, seq int) (*types.Dive, error) {
	dive := &types.Dive{
		ID:     elt.ID,
		Number: elt.Before.DiveNumber,
	}
	if dive.ID == "" {
		dive.ID = fmt.Sprintf("dive-%d", seq)
	}

	if elt.Before.DateTime == "" {
		return nil, fmt.Errorf("missing datetime")
	}
	start, err := parseUDDFTime(elt.Before.DateTime)
	if err != nil {
		return nil, fmt.Errorf("datetime: %w", err)
	}
	dive.Start = start
	dive.AirTemp = kelvinToCelsius(elt.Before.AirTemp)

	if after := elt.After; after != nil {
		if after.GreatestDepth != nil {
			dive.MaxDepth = *after.GreatestDepth
		}
		if after.AvgDepth != nil {
			dive.AvgDepth = *after.AvgDepth
		}
		if after.Duration != nil {
			dive.Duration = int(math.Round(*after.Duration))
		}
		dive.WaterTemp = kelvinToCelsius(after.LowestTemp)
		if after.Notes != nil {
			dive.Notes = after.Notes.Para
		}
		if used := after.EquipmentUsed; used != nil {
			if used.LeadQuantity != nil {
				dive.WeightKg = *used.LeadQuantity
			}
			f.applyLinks(dive, used.Links, refs)
		}
	}

	f.applyLinks(dive, elt.Before.Links, refs)
	for _, tank := range elt.TankData {
		if tank.PressureBegin != nil {
			dive.PressureIn = *tank.PressureBegin
		}
		if tank.PressureEnd != nil {
			dive.PressureOut = *tank.PressureEnd
		}
		if tank.Link != nil {
			f.applyLinks(dive, []uddfLink{*tank.Link}, refs)
		}
	}

	if elt.Samples != nil && len(elt.Samples.Waypoints) > 0 {
		f.parseWaypoints(dive, elt.Samples.Waypoints, refs)
	}
	return dive, nil
}

// applyLinks resolves @ref links against the collected head sections.
// Unresolvable refs are ignored, matching the tolerance for unknown
// elements.
func (f *UDDF) applyLinks(dive *types.Dive, links []uddfLink, refs uddfRefs) {
	for _, link := range links {
		if site, ok := refs.sites[link.Ref]; ok {
			dive.Site = site
			continue
		}
		if buddy, ok := refs.buddies[link.Ref]; ok && dive.Buddy == "" {
			dive.Buddy = buddy
			continue
		}
		if pdc, ok := refs.computers[link.Ref]; ok {
			period := dive.Computer.SamplingPeriod
			dive.Computer = pdc
			dive.Computer.SamplingPeriod = period
			continue
		}
		if mix, ok := refs.mixes[link.Ref]; ok && dive.Mix == "" {
			dive.Mix = mix
		}
	}
}

func (f *UDDF) parseWaypoints(dive *types.Dive, waypoints []uddfWaypoint, refs uddfRefs) {
	var (
		prevOffset int
		prevDepth  float64
		prevTemp   *float64
		prevMix    string
		span       int
	)
	for i, wp := range waypoints {
		s := types.Sample{Offset: prevOffset, Depth: prevDepth}
		if wp.DiveTime != nil {
			s.Offset = int(math.Round(*wp.DiveTime))
		}
		if wp.Depth != nil {
			s.Depth = *wp.Depth
		}
		if t := kelvinToCelsius(wp.Temperature); t != nil {
			s.Temp = t
			prevTemp = t
		} else {
			s.Temp = prevTemp
		}
		s.Pressure = wp.TankPressure
		if wp.SwitchMix != nil {
			if mix, ok := refs.mixes[wp.SwitchMix.Ref]; ok && mix != prevMix {
				s.Mix = mix
				prevMix = mix
				if dive.Mix == "" {
					dive.Mix = mix
				}
			}
		}
		for _, a := range wp.Alarms {
			alarm := parseUDDFAlarm(a)
			s.Alarms = append(s.Alarms, alarm)
			dive.Alarms = appendAlarm(dive.Alarms, alarm)
		}
		if i > 0 {
			span += s.Offset - prevOffset
		}
		prevOffset = s.Offset
		prevDepth = s.Depth
		dive.Samples = append(dive.Samples, s)
	}

	if len(dive.Samples) > 1 {
		dive.Computer.SamplingPeriod = int(math.Round(float64(span) / float64(len(dive.Samples)-1)))
	}
	if first := dive.Samples[0]; first.Temp != nil && dive.SurfaceTemp == nil {
		dive.SurfaceTemp = first.Temp
	}
}

func parseUDDFAlarm(raw string) types.Alarm {
	switch raw {
	case "ascent":
		return types.AlarmAscent
	case "deco":
		return types.AlarmDeco
	case "surface":
		return types.AlarmSurface
	default:
		return types.AlarmError
	}
}

// parseUDDFTime accepts datetimes with and without a timezone offset.
func parseUDDFTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(uddfTimeLayout, raw)
}

func kelvinToCelsius(k *float64) *float64 {
	if k == nil {
		return nil
	}
	c := *k - kelvinOffset
	return &c
}

func celsiusToKelvin(c *float64) *float64 {
	if c == nil {
		return nil
	}
	k := *c + kelvinOffset
	return &k
}

// Serialize writes a self-consistent UDDF document: every dive's header
// fields plus the full profile when available, with deterministic element
// ids so identical logs produce byte-identical output.
func (f *UDDF) Serialize(log *types.DiveLog, opts Options) ([]byte, error) {
	doc := f.buildDoc(log)
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &SerializeError{Format: f.Name(), DiveIndex: -1, Reason: err.Error()}
	}
	data := make([]byte, 0, len(xml.Header)+len(out)+1)
	data = append(data, xml.Header...)
	data = append(data, out...)
	data = append(data, '\n')
	return data, nil
}

func (f *UDDF) buildDoc(log *types.DiveLog) *uddfDoc {
	doc := &uddfDoc{
		Version: uddfVersion,
		Generator: &uddfGenerator{
			Name:     "divelog-convert",
			DateTime: f.Now().Format(uddfTimeLayout),
		},
		Diver: &uddfDiver{
			Owner: &uddfOwner{
				ID: "owner",
				Personal: uddfPersonal{
					FirstName: f.cfg.DiverFirstName,
					LastName:  f.cfg.DiverLastName,
				},
			},
		},
	}

	// Head sections index the distinct computers, buddies, and sites in
	// first-appearance order; dives link back by id.
	pdcIDs := map[string]string{}
	buddyIDs := map[string]string{}
	siteIDs := map[types.Site]string{}
	for _, dive := range log.Dives {
		pdc := dive.Computer
		if pdc.Model != "" || pdc.Serial != "" {
			key := pdc.Model + "|" + pdc.Serial
			if _, ok := pdcIDs[key]; !ok {
				id := fmt.Sprintf("pdc%d", len(pdcIDs)+1)
				pdcIDs[key] = id
				if doc.Diver.Owner.Equipment == nil {
					doc.Diver.Owner.Equipment = &uddfEquipment{}
				}
				doc.Diver.Owner.Equipment.Computers = append(doc.Diver.Owner.Equipment.Computers, uddfComputer{
					ID:           id,
					Name:         pdc.Model,
					Manufacturer: pdc.Manufacturer,
					Serial:       pdc.Serial,
				})
			}
		}
		if dive.Buddy != "" {
			if _, ok := buddyIDs[dive.Buddy]; !ok {
				id := fmt.Sprintf("buddy%d", len(buddyIDs)+1)
				buddyIDs[dive.Buddy] = id
				doc.Diver.Buddies = append(doc.Diver.Buddies, uddfBuddy{
					ID:       id,
					Personal: splitName(dive.Buddy),
				})
			}
		}
		if !dive.Site.IsZero() {
			if _, ok := siteIDs[dive.Site]; !ok {
				id := fmt.Sprintf("site%d", len(siteIDs)+1)
				siteIDs[dive.Site] = id
				if doc.DiveSite == nil {
					doc.DiveSite = &uddfDiveSite{}
				}
				doc.DiveSite.Sites = append(doc.DiveSite.Sites, buildSite(id, dive.Site))
			}
		}
	}

	mixIDs := map[string]string{}
	if len(log.Mixes) > 0 {
		doc.GasDefs = &uddfGasDefs{}
		for i, mix := range log.Mixes {
			id := fmt.Sprintf("mix%d", i+1)
			mixIDs[mix.Name] = id
			doc.GasDefs.Mixes = append(doc.GasDefs.Mixes, uddfMix{
				ID:   id,
				Name: mix.Name,
				O2:   mix.O2,
				N2:   mix.N2,
				He:   mix.He,
			})
		}
	}

	if len(log.Dives) > 0 {
		group := uddfGroup{ID: "rg1"}
		for i := range log.Dives {
			group.Dives = append(group.Dives, f.buildDive(log, i, pdcIDs, buddyIDs, siteIDs, mixIDs))
		}
		doc.ProfileData = &uddfProfile{Groups: []uddfGroup{group}}
	}
	return doc
}

func buildSite(id string, site types.Site) uddfSite {
	s := uddfSite{ID: id, Name: site.Name}
	if site.Location != "" || site.Lat != nil || site.Lon != nil ||
		site.City != "" || site.Province != "" || site.Country != "" {
		s.Geography = &uddfGeography{
			Location:  site.Location,
			Latitude:  site.Lat,
			Longitude: site.Lon,
		}
		if site.City != "" || site.Province != "" || site.Country != "" {
			s.Geography.Address = &uddfAddress{
				City:     site.City,
				Province: site.Province,
				Country:  site.Country,
			}
		}
	}
	return s
}

func (f *UDDF) buildDive(log *types.DiveLog, i int, pdcIDs, buddyIDs map[string]string, siteIDs map[types.Site]string, mixIDs map[string]string) uddfDive {
	dive := log.Dives[i]
	elt := uddfDive{ID: dive.ID}
	if elt.ID == "" {
		elt.ID = fmt.Sprintf("dive-%d", i+1)
	}

	elt.Before = uddfInfoBefore{
		DiveNumber: dive.Number,
		DateTime:   dive.Start.Format(uddfTimeLayout),
		AirTemp:    celsiusToKelvin(dive.AirTemp),
	}
	if !dive.Site.IsZero() {
		elt.Before.Links = append(elt.Before.Links, uddfLink{Ref: siteIDs[dive.Site]})
	}
	if dive.Buddy != "" {
		elt.Before.Links = append(elt.Before.Links, uddfLink{Ref: buddyIDs[dive.Buddy]})
	}
	if dive.Computer.Model != "" || dive.Computer.Serial != "" {
		elt.Before.Links = append(elt.Before.Links, uddfLink{Ref: pdcIDs[dive.Computer.Model+"|"+dive.Computer.Serial]})
	}
	if dive.Mix != "" {
		if id, ok := mixIDs[dive.Mix]; ok {
			elt.Before.Links = append(elt.Before.Links, uddfLink{Ref: id})
		}
	}

	if len(dive.Samples) > 0 {
		samples := &uddfSamples{}
		for _, s := range dive.Samples {
			wp := uddfWaypoint{
				DiveTime:     floatPtr(float64(s.Offset)),
				Depth:        floatPtr(s.Depth),
				Temperature:  celsiusToKelvin(s.Temp),
				TankPressure: s.Pressure,
			}
			if s.Mix != "" {
				if id, ok := mixIDs[s.Mix]; ok {
					wp.SwitchMix = &uddfLink{Ref: id}
				}
			}
			for _, a := range s.Alarms {
				wp.Alarms = append(wp.Alarms, string(a))
			}
			samples.Waypoints = append(samples.Waypoints, wp)
		}
		elt.Samples = samples
	}

	if dive.PressureIn > 0 || dive.PressureOut > 0 {
		tank := uddfTankData{}
		if dive.PressureIn > 0 {
			tank.PressureBegin = floatPtr(dive.PressureIn)
		}
		if dive.PressureOut > 0 {
			tank.PressureEnd = floatPtr(dive.PressureOut)
		}
		elt.TankData = []uddfTankData{tank}
	}

	after := &uddfInfoAfter{
		GreatestDepth: floatPtr(dive.MaxDepth),
		Duration:      floatPtr(float64(dive.Duration)),
		LowestTemp:    celsiusToKelvin(dive.WaterTemp),
	}
	if dive.AvgDepth > 0 {
		after.AvgDepth = floatPtr(dive.AvgDepth)
	}
	if dive.Notes != "" {
		after.Notes = &uddfNotes{Para: dive.Notes}
	}
	if dive.WeightKg > 0 {
		after.EquipmentUsed = &uddfEquipmentUsed{LeadQuantity: intPtr(dive.WeightKg)}
	}
	elt.After = after
	return elt
}

// splitName splits a full name on the last space; single-token names go
// into the first-name field.
func splitName(full string) uddfPersonal {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ' ' {
			return uddfPersonal{FirstName: full[:i], LastName: full[i+1:]}
		}
	}
	return uddfPersonal{FirstName: full}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
