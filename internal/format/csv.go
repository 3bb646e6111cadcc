// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

// diviacColumns lists the canonical field keys and the diviac export
// headers they map to, in column order. Config.CSVColumns overrides the
// header per key.
var diviacColumns = []struct{ key, header string }{
	{"number", "Dive #"},
	{"date", "Date"},
	{"trip", "Trip"},
	{"location", "Location"},
	{"site", "Dive Site"},
	{"lat", "lat"},
	{"lng", "lng"},
	{"operator", "Dive operator"},
	{"buddy", "Dive buddy"},
	{"tags", "Dive tags"},
	{"weather", "Weather"},
	{"water", "Water"},
	{"water_type", "Water type"},
	{"waves", "Waves"},
	{"current", "Current"},
	{"visibility", "Visibility"},
	{"air_temp", "Air temp"},
	{"surface_temp", "Surface temp"},
	{"bottom_temp", "Bottom temp"},
	{"weight", "Weight"},
	{"time_in", "Time in"},
	{"time_out", "Time out"},
	{"duration", "Duration"},
	{"max_depth", "Max depth"},
	{"avg_depth", "Avg depth"},
	{"o2", "O2 %"},
	{"pressure_in", "Pressure in"},
	{"pressure_out", "Pressure out"},
	{"gas_consumption", "Gas consumption"},
	{"tank_volume", "Tank volume"},
	{"tank_type", "Tank type"},
	{"notes", "Notes"},
	{"sightings", "Marine life sightings"},
	{"profile", "Dive profile data"},
}

// diviacAlarms maps the long alarm labels used in the profile column to
// the canonical alarm markers.
var diviacAlarms = map[string]types.Alarm{
	"Ascent rate violation":   types.AlarmAscent,
	"Decompression violation": types.AlarmDeco,
}

// DiviacCSV reads and writes the diviac logbook CSV export. One row is
// one dive; the "Dive profile data" column optionally embeds the sample
// profile as a JSON array.
type DiviacCSV struct {
	cfg types.Config
}

// NewDiviacCSV returns the diviac CSV codec for cfg.
func NewDiviacCSV(cfg types.Config) *DiviacCSV {
	return &DiviacCSV{cfg: cfg}
}

// Name returns the format tag.
func (f *DiviacCSV) Name() string { return "diviac" }

// Extensions returns the file extensions the format is inferred from.
func (f *DiviacCSV) Extensions() []string { return []string{".csv"} }

// header returns the column header for a canonical field key, honoring
// config overrides.
func (f *DiviacCSV) header(key string) string {
	if h, ok := f.cfg.CSVColumns[key]; ok {
		return h
	}
	for _, c := range diviacColumns {
		if c.key == key {
			return c.header
		}
	}
	return key
}

// Parse decodes a diviac CSV export. Rows missing a required value
// (date, time in, duration, max depth) fail that row: the whole parse in
// strict mode, skip-and-continue in lenient mode.
func (f *DiviacCSV) Parse(data []byte, source string, opts Options) (*types.DiveLog, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Format: f.Name(), Location: "document", Reason: "malformed CSV", Err: err}
	}
	if len(records) == 0 {
		return nil, &ParseError{Format: f.Name(), Location: "document", Reason: "missing header row"}
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	log := newLog(f.Name(), source)
	for rowNum, row := range records[1:] {
		dive, err := f.parseRow(log, row, colIdx)
		if err == nil {
			if violations := types.Validate(*dive); len(violations) > 0 {
				err = &ValidationError{Violations: violations}
			}
		}
		if err != nil {
			if opts.Strict {
				return nil, &ParseError{
					Format:   f.Name(),
					Location: fmt.Sprintf("row %d", rowNum+2),
					Reason:   "invalid dive row",
					Err:      err,
				}
			}
			note := fmt.Sprintf("row %d: %v", rowNum+2, err)
			log.Source.Skipped = append(log.Source.Skipped, note)
			opts.Warnf("%s: %s", source, note)
			continue
		}
		log.Dives = append(log.Dives, *dive)
	}
	return log, nil
}

func (f *DiviacCSV) parseRow(log *types.DiveLog, row []string, colIdx map[string]int) (*types.Dive, error) {
	get := func(key string) string {
		idx, ok := colIdx[f.header(key)]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	date, timeIn := get("date"), get("time_in")
	if date == "" || timeIn == "" {
		return nil, fmt.Errorf("missing required date or time in")
	}
	start, err := time.Parse(f.cfg.DiviacDateTimeLayout(), date+" "+timeIn)
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}

	durRaw := get("duration")
	if durRaw == "" {
		return nil, fmt.Errorf("missing required duration")
	}
	durMin, err := strconv.Atoi(durRaw)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}

	depthRaw := get("max_depth")
	if depthRaw == "" {
		return nil, fmt.Errorf("missing required max depth")
	}
	maxDepth, err := parseUnitValue(depthRaw)
	if err != nil {
		return nil, fmt.Errorf("max depth: %w", err)
	}

	dive := &types.Dive{
		Start:    start,
		Duration: durMin * 60,
		MaxDepth: *maxDepth,
		Buddy:    get("buddy"),
		TankName: get("tank_type"),
		Notes:    get("notes"),
		Computer: types.Computer{
			Manufacturer: f.cfg.PDCManufacturer,
			Model:        f.cfg.PDCModel,
			Serial:       f.cfg.PDCSerial,
		},
	}

	if raw := get("number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("dive number: %w", err)
		}
		dive.Number = n
	}
	if dive.Number > 0 {
		dive.ID = fmt.Sprintf("dive-%d", dive.Number)
	} else {
		dive.ID = fmt.Sprintf("dive-%d", len(log.Dives)+1)
	}

	for _, opt := range []struct {
		key  string
		dest **float64
	}{
		{"air_temp", &dive.AirTemp},
		{"surface_temp", &dive.SurfaceTemp},
		{"bottom_temp", &dive.WaterTemp},
	} {
		v, err := parseUnitValue(get(opt.key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opt.key, err)
		}
		*opt.dest = v
	}
	if v, err := parseUnitValue(get("avg_depth")); err != nil {
		return nil, fmt.Errorf("avg depth: %w", err)
	} else if v != nil {
		dive.AvgDepth = *v
	}
	if v, err := parseUnitValue(get("pressure_in")); err != nil {
		return nil, fmt.Errorf("pressure in: %w", err)
	} else if v != nil {
		dive.PressureIn = *v
	}
	if v, err := parseUnitValue(get("pressure_out")); err != nil {
		return nil, fmt.Errorf("pressure out: %w", err)
	} else if v != nil {
		dive.PressureOut = *v
	}
	if v, err := parseUnitValue(get("tank_volume")); err != nil {
		return nil, fmt.Errorf("tank volume: %w", err)
	} else if v != nil {
		dive.TankVolume = int(*v)
	}
	if raw := get("weight"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("weight: %w", err)
		}
		dive.WeightKg = w
	}

	dive.Site = types.Site{
		Name:     get("site"),
		Location: get("location"),
	}
	dive.Site.City, dive.Site.Province, dive.Site.Country = splitLocation(get("location"))
	if v, err := parseUnitValue(get("lat")); err == nil && v != nil {
		dive.Site.Lat = v
	}
	if v, err := parseUnitValue(get("lng")); err == nil && v != nil {
		dive.Site.Lon = v
	}

	mix, err := f.parseMix(log, get("o2"))
	if err != nil {
		return nil, err
	}
	dive.Mix = mix

	if raw := get("profile"); raw != "" {
		samples, period, err := f.parseProfile(raw, mix)
		if err != nil {
			return nil, fmt.Errorf("profile data: %w", err)
		}
		dive.Samples = samples
		dive.Computer.SamplingPeriod = period
		for _, s := range samples {
			for _, a := range s.Alarms {
				dive.Alarms = appendAlarm(dive.Alarms, a)
			}
		}
	}
	return dive, nil
}

// parseMix resolves the "O2 %" column into a mix table entry. Empty and
// 21% both mean air.
func (f *DiviacCSV) parseMix(log *types.DiveLog, raw string) (string, error) {
	raw = strings.TrimSuffix(raw, "%")
	if raw == "" {
		return log.AddMix(types.Air()).Name, nil
	}
	po2, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("o2 percentage: %w", err)
	}
	if po2 == 0 || po2 == types.Air().O2Percent() {
		return log.AddMix(types.Air()).Name, nil
	}
	return log.AddMix(types.Nitrox(po2)).Name, nil
}

// parseProfile decodes the embedded profile column: a JSON array of
// [seconds, depth, temp, [alarm labels], pressure] samples. It returns
// the samples and the average sampling period.
func (f *DiviacCSV) parseProfile(raw, mix string) ([]types.Sample, int, error) {
	var rows [][]any
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, 0, err
	}

	samples := make([]types.Sample, 0, len(rows))
	lastOffset := 0
	span := 0
	for i, r := range rows {
		s := types.Sample{}
		offset, err := jsonFloat(r, 0)
		if err != nil {
			return nil, 0, fmt.Errorf("sample %d offset: %w", i, err)
		}
		if offset != nil {
			s.Offset = int(math.Round(*offset))
		}
		depth, err := jsonFloat(r, 1)
		if err != nil {
			return nil, 0, fmt.Errorf("sample %d depth: %w", i, err)
		}
		if depth != nil {
			s.Depth = *depth
		}
		if s.Temp, err = jsonFloat(r, 2); err != nil {
			return nil, 0, fmt.Errorf("sample %d temperature: %w", i, err)
		}
		if s.Pressure, err = jsonFloat(r, 4); err != nil {
			return nil, 0, fmt.Errorf("sample %d pressure: %w", i, err)
		}
		if i == 0 {
			s.Mix = mix
		} else {
			span += s.Offset - lastOffset
		}
		lastOffset = s.Offset

		if len(r) > 3 {
			labels, ok := r[3].([]any)
			if !ok && r[3] != nil {
				return nil, 0, fmt.Errorf("sample %d: alarm list is not an array", i)
			}
			for _, l := range labels {
				label, _ := l.(string)
				alarm, ok := diviacAlarms[label]
				if !ok {
					alarm = types.AlarmError
				}
				s.Alarms = append(s.Alarms, alarm)
			}
		}
		samples = append(samples, s)
	}

	period := 0
	if len(samples) > 1 {
		period = int(math.Round(float64(span) / float64(len(samples)-1)))
	}
	return samples, period, nil
}

// jsonFloat reads row[i] as an optional number; null, "", and a missing
// index all mean absent. Any other non-numeric value fails the sample
// rather than being clamped to zero.
func jsonFloat(row []any, i int) (*float64, error) {
	if i >= len(row) || row[i] == nil {
		return nil, nil
	}
	switch v := row[i].(type) {
	case float64:
		return &v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric value %q", v)
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("non-numeric value %v", v)
	}
}

// splitLocation extracts city, province, and country from a comma
// separated location string. One token is a city; two are city and
// country; more than two put everything in between into the province.
func splitLocation(location string) (city, province, country string) {
	if location == "" {
		return "", "", ""
	}
	tokens := strings.Split(location, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	city = tokens[0]
	if len(tokens) > 1 {
		country = tokens[len(tokens)-1]
	}
	if len(tokens) > 2 {
		province = strings.Join(tokens[1:len(tokens)-1], ", ")
	}
	return city, province, country
}

// parseUnitValue parses a numeric column value that may carry a trailing
// unit label, e.g. "18.2 m" or "24 °C". Empty input means absent.
func parseUnitValue(raw string) (*float64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("numeric value %q: %w", raw, err)
	}
	return &v, nil
}

// Serialize writes the log as a diviac CSV export with the full column
// set in canonical order.
func (f *DiviacCSV) Serialize(log *types.DiveLog, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(diviacColumns))
	for i, c := range diviacColumns {
		header[i] = f.header(c.key)
	}
	if err := w.Write(header); err != nil {
		return nil, &SerializeError{Format: f.Name(), DiveIndex: -1, Reason: err.Error()}
	}

	for i := range log.Dives {
		record, err := f.buildRow(log, i)
		if err != nil {
			return nil, err
		}
		if err := w.Write(record); err != nil {
			return nil, &SerializeError{Format: f.Name(), DiveIndex: i, Reason: err.Error()}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, &SerializeError{Format: f.Name(), DiveIndex: -1, Reason: err.Error()}
	}
	return buf.Bytes(), nil
}

func (f *DiviacCSV) buildRow(log *types.DiveLog, i int) ([]string, error) {
	dive := log.Dives[i]
	cells := make(map[string]string, len(diviacColumns))

	num := dive.Number
	if num == 0 {
		num = i + 1
	}
	cells["number"] = strconv.Itoa(num)
	cells["date"] = dive.Start.Format(f.cfg.DiviacDateLayout())
	cells["time_in"] = dive.Start.Format(f.cfg.DiviacTimeLayout())
	cells["time_out"] = dive.End().Format(f.cfg.DiviacTimeLayout())
	cells["duration"] = strconv.Itoa(dive.DurationMin())
	cells["location"] = dive.Site.Location
	cells["site"] = dive.Site.Name
	cells["lat"] = fmtOptFloat(dive.Site.Lat)
	cells["lng"] = fmtOptFloat(dive.Site.Lon)
	cells["buddy"] = dive.Buddy
	cells["air_temp"] = f.withUnit(dive.AirTemp, "°"+f.cfg.UnitTemperature)
	cells["surface_temp"] = f.withUnit(dive.SurfaceTemp, "°"+f.cfg.UnitTemperature)
	cells["bottom_temp"] = f.withUnit(dive.WaterTemp, "°"+f.cfg.UnitTemperature)
	cells["max_depth"] = fmtFloat(dive.MaxDepth) + " " + f.cfg.UnitDistance
	if dive.AvgDepth > 0 {
		cells["avg_depth"] = fmtFloat(dive.AvgDepth) + " " + f.cfg.UnitDistance
	}
	if dive.PressureIn > 0 {
		cells["pressure_in"] = fmtFloat(dive.PressureIn) + " " + f.cfg.UnitPressure
	}
	if dive.PressureOut > 0 {
		cells["pressure_out"] = fmtFloat(dive.PressureOut) + " " + f.cfg.UnitPressure
	}
	if dive.WeightKg > 0 {
		cells["weight"] = strconv.Itoa(dive.WeightKg)
	}
	if dive.TankVolume > 0 {
		cells["tank_volume"] = strconv.Itoa(dive.TankVolume) + " " + f.cfg.UnitVolume
	}
	cells["tank_type"] = dive.TankName
	cells["notes"] = dive.Notes

	if dive.Mix != "" {
		mix, ok := log.MixByName(dive.Mix)
		if !ok {
			return nil, &SerializeError{
				Format:    f.Name(),
				DiveIndex: i,
				Reason:    fmt.Sprintf("dive references unknown mix %q", dive.Mix),
			}
		}
		if !mix.IsAir() {
			cells["o2"] = fmt.Sprintf("%d%%", mix.O2Percent())
		}
	}

	if len(dive.Samples) > 0 {
		profile, err := f.buildProfile(dive.Samples)
		if err != nil {
			return nil, &SerializeError{Format: f.Name(), DiveIndex: i, Reason: err.Error()}
		}
		cells["profile"] = profile
	}

	record := make([]string, len(diviacColumns))
	for j, c := range diviacColumns {
		record[j] = cells[c.key]
	}
	return record, nil
}

func (f *DiviacCSV) withUnit(v *float64, unit string) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v) + " " + unit
}

// buildProfile encodes samples into the profile column's JSON form.
func (f *DiviacCSV) buildProfile(samples []types.Sample) (string, error) {
	rows := make([][]any, len(samples))
	for i, s := range samples {
		labels := []string{}
		for _, a := range s.Alarms {
			for label, alarm := range diviacAlarms {
				if alarm == a {
					labels = append(labels, label)
				}
			}
		}
		var temp any
		if s.Temp != nil {
			temp = *s.Temp
		}
		var pressure any = ""
		if s.Pressure != nil {
			pressure = *s.Pressure
		}
		rows[i] = []any{s.Offset, s.Depth, temp, labels, pressure}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
