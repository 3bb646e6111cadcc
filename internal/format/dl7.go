// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vchene/divelog-convert/pkg/types"
)

const (
	// dl7DLAID is the data-logger application identifier written into
	// the FSH file header.
	dl7DLAID = "ABC123"
	// dl7TimeLayout is the compact timestamp used by ZDH/ZDT records.
	dl7TimeLayout = "20060102150405"
)

// dl7DepthUnit maps the configured distance unit to the NMRI depth code.
var dl7DepthUnit = map[string]string{"m": "MSWG", "ft": "FSWG"}

// dl7AltitudeUnit maps the configured distance unit to the altitude code.
var dl7AltitudeUnit = map[string]string{"m": "ThM", "ft": "ThFt"}

// dl7PressureUnit maps the configured pressure unit to the NMRI code.
var dl7PressureUnit = map[string]string{"bar": "bar", "psi": "PSIA"}

// DL7 reads and writes the tagged-line DL7 dive-computer export format.
// Each line starts with a record tag: FSH (file header), ZRH (recorder
// header), ZAR (application block, opaque), ZDH (dive header), ZDP{/ZDP}
// (profile block with one sample per line), ZDT (dive trailer).
type DL7 struct {
	cfg types.Config

	// Now supplies the FSH header timestamp. Substituted in tests to
	// keep serialization byte-identical across runs.
	Now func() time.Time
}

// NewDL7 returns the DL7 codec for cfg.
func NewDL7(cfg types.Config) *DL7 {
	return &DL7{cfg: cfg, Now: time.Now}
}

// Name returns the format tag.
func (f *DL7) Name() string { return "dl7" }

// Extensions returns the file extensions the format is inferred from.
func (f *DL7) Extensions() []string { return []string{".zxu"} }

// Parse decodes a DL7 document. A ZDH line starts a new dive and flushes
// the previous one; sample lines inside a ZDP block append profile
// samples. Unrecognized tags fail the parse in strict mode and are
// skipped with a warning otherwise.
func (f *DL7) Parse(data []byte, source string, opts Options) (*types.DiveLog, error) {
	log := newLog(f.Name(), source)

	var (
		cur       *types.Dive
		device    types.Computer
		inZAR     bool
		inProfile bool
		prevMix   string
		lineNo    int
	)

	// skip records a per-record issue: hard failure in strict mode,
	// note-and-continue in lenient mode.
	skip := func(reason string, err error) error {
		if opts.Strict {
			return &ParseError{
				Format:   f.Name(),
				Location: fmt.Sprintf("line %d", lineNo),
				Reason:   reason,
				Err:      err,
			}
		}
		note := fmt.Sprintf("line %d: %s", lineNo, reason)
		log.Source.Skipped = append(log.Source.Skipped, note)
		opts.Warnf("%s: %s", source, note)
		return nil
	}

	flush := func() error {
		if cur == nil {
			return nil
		}
		d := *cur
		cur = nil
		period := d.Computer.SamplingPeriod
		d.Computer = device
		d.Computer.SamplingPeriod = period
		if d.ID == "" {
			d.ID = fmt.Sprintf("dive-%d", len(log.Dives)+1)
		}
		if violations := types.Validate(d); len(violations) > 0 {
			if opts.Strict {
				return &ParseError{
					Format:   f.Name(),
					Location: fmt.Sprintf("dive %d", d.Number),
					Reason:   "invalid dive",
					Err:      &ValidationError{Violations: violations},
				}
			}
			note := fmt.Sprintf("dive %d: %s", d.Number, (&ValidationError{Violations: violations}).Error())
			log.Source.Skipped = append(log.Source.Skipped, note)
			opts.Warnf("%s: %s", source, note)
			return nil
		}
		log.Dives = append(log.Dives, d)
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		switch {
		case inZAR:
			if line == "}" || line == "ZAR}" {
				inZAR = false
			}
		case inProfile && strings.HasPrefix(line, "|"):
			if cur == nil {
				if err := skip("sample outside dive", nil); err != nil {
					return nil, err
				}
				continue
			}
			sample, mixName, err := f.parseSample(log, line, prevMix)
			if err != nil {
				if err := skip("malformed sample", err); err != nil {
					return nil, err
				}
				continue
			}
			if mixName != "" {
				prevMix = mixName
				if cur.Mix == "" {
					cur.Mix = mixName
				}
			}
			for _, a := range sample.Alarms {
				cur.Alarms = appendAlarm(cur.Alarms, a)
			}
			cur.Samples = append(cur.Samples, sample)
		case line == "ZDP{":
			inProfile = true
		case line == "ZDP}":
			inProfile = false
		case strings.HasPrefix(line, "ZDH|"):
			if err := flush(); err != nil {
				return nil, err
			}
			d, err := f.parseZDH(line)
			if err != nil {
				if err := skip("malformed dive header", err); err != nil {
					return nil, err
				}
				continue
			}
			cur = d
			prevMix = ""
		case strings.HasPrefix(line, "ZDT|"):
			if cur == nil {
				if err := skip("dive trailer outside dive", nil); err != nil {
					return nil, err
				}
				continue
			}
			if err := f.parseZDT(line, cur); err != nil {
				if err := skip("malformed dive trailer", err); err != nil {
					return nil, err
				}
			}
		case strings.HasPrefix(line, "FSH|"):
			// File header carries only the exporting application ID.
		case strings.HasPrefix(line, "ZRH|"):
			fields := strings.Split(line, "|")
			device.Model = field(fields, 2)
			device.Serial = field(fields, 3)
		case line == "ZAR{}":
			// Empty application block.
		case strings.HasPrefix(line, "ZAR{"):
			inZAR = true
		default:
			if err := skip(fmt.Sprintf("unrecognized tag %q", recordTag(line)), nil); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Format: f.Name(), Location: "stream", Reason: "read failed", Err: err}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return log, nil
}

// parseZDH decodes a dive header line:
// ZDH|num|num|I|Q<period>S|<start>|<airtemp>||PO2|
func (f *DL7) parseZDH(line string) (*types.Dive, error) {
	fields := strings.Split(line, "|")
	num, err := strconv.Atoi(field(fields, 1))
	if err != nil {
		return nil, fmt.Errorf("dive number: %w", err)
	}
	start, err := time.Parse(dl7TimeLayout, field(fields, 5))
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	d := &types.Dive{
		ID:     fmt.Sprintf("dive-%d", num),
		Number: num,
		Start:  start,
	}
	if period := field(fields, 4); strings.HasPrefix(period, "Q") && strings.HasSuffix(period, "S") {
		if p, err := strconv.Atoi(period[1 : len(period)-1]); err == nil {
			d.Computer.SamplingPeriod = p
		}
	}
	if raw := field(fields, 6); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("air temperature: %w", err)
		}
		d.AirTemp = &t
	}
	return d, nil
}

// parseZDT decodes a dive trailer line:
// ZDT|num|num|<maxdepth>|<end>|<mintemp>|<pressuredrop>|
func (f *DL7) parseZDT(line string, d *types.Dive) error {
	fields := strings.Split(line, "|")
	if raw := field(fields, 3); raw != "" {
		depth, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("max depth: %w", err)
		}
		d.MaxDepth = depth
	}
	end, err := time.Parse(dl7TimeLayout, field(fields, 4))
	if err != nil {
		return fmt.Errorf("end time: %w", err)
	}
	d.Duration = int(end.Sub(d.Start).Seconds())
	if raw := field(fields, 5); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("min temperature: %w", err)
		}
		d.WaterTemp = &t
	}
	return nil
}

// parseSample decodes one profile line:
// |<minutes>|<depth>|<mix>||<ascent>|<deco>||<temp>||<pressure>|
// The mix token is "1" for air or "2.<o2%>" for nitrox; helium is not
// representable in this format.
func (f *DL7) parseSample(log *types.DiveLog, line, prevMix string) (types.Sample, string, error) {
	fields := strings.Split(line, "|")

	minutes, err := strconv.ParseFloat(field(fields, 1), 64)
	if err != nil {
		return types.Sample{}, "", fmt.Errorf("time: %w", err)
	}
	depth, err := strconv.ParseFloat(field(fields, 2), 64)
	if err != nil {
		return types.Sample{}, "", fmt.Errorf("depth: %w", err)
	}
	s := types.Sample{
		Offset: int(math.Round(minutes * 60)),
		Depth:  depth,
	}

	mixName := ""
	switch token := field(fields, 3); {
	case token == "" || token == "1":
		if token == "1" {
			mixName = log.AddMix(types.Air()).Name
		}
	case strings.HasPrefix(token, "2."):
		po2, err := strconv.Atoi(token[2:])
		if err != nil {
			return types.Sample{}, "", fmt.Errorf("gas token %q: %w", token, err)
		}
		mixName = log.AddMix(types.Nitrox(po2)).Name
	default:
		return types.Sample{}, "", fmt.Errorf("unrecognized gas token %q", token)
	}
	if mixName != "" && mixName != prevMix {
		s.Mix = mixName
	} else {
		mixName = ""
	}

	if field(fields, 5) == "T" {
		s.Alarms = append(s.Alarms, types.AlarmAscent)
	}
	if field(fields, 6) == "T" {
		s.Alarms = append(s.Alarms, types.AlarmDeco)
	}
	if raw := field(fields, 8); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Sample{}, "", fmt.Errorf("temperature: %w", err)
		}
		s.Temp = &t
	}
	if raw := field(fields, 10); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Sample{}, "", fmt.Errorf("pressure: %w", err)
		}
		s.Pressure = &p
	}
	return s, mixName, nil
}

// Serialize writes the whole log as one DL7 document.
func (f *DL7) Serialize(log *types.DiveLog, opts Options) ([]byte, error) {
	var b strings.Builder
	f.writeFileHeader(&b, log)
	b.WriteString("ZAR{}\n")
	for i := range log.Dives {
		if err := f.writeDive(&b, log, i, 0, opts); err != nil {
			return nil, err
		}
	}
	return []byte(b.String()), nil
}

// writeFileHeader emits the FSH and ZRH records.
func (f *DL7) writeFileHeader(b *strings.Builder, log *types.DiveLog) {
	device := f.deviceFor(log)
	fmt.Fprintf(b, "FSH|^~<>{}|%s^^|ZXU|%s|\n", dl7DLAID, f.Now().Format(dl7TimeLayout))
	fmt.Fprintf(b, "ZRH|^~<>{}|%s|%s|%s|%s|%s|%s|%s|\n",
		device.Model,
		device.Serial,
		dl7DepthUnit[f.cfg.UnitDistance],
		dl7AltitudeUnit[f.cfg.UnitDistance],
		f.cfg.UnitTemperature,
		dl7PressureUnit[f.cfg.UnitPressure],
		f.cfg.UnitVolume,
	)
}

// deviceFor returns the computer metadata for the recorder header,
// falling back to the configured defaults.
func (f *DL7) deviceFor(log *types.DiveLog) types.Computer {
	device := types.Computer{Model: f.cfg.PDCModel, Serial: f.cfg.PDCSerial}
	if len(log.Dives) > 0 {
		pdc := log.Dives[0].Computer
		if pdc.Model != "" {
			device.Model = pdc.Model
		}
		if pdc.Serial != "" {
			device.Serial = pdc.Serial
		}
	}
	return device
}

// writeDive emits the ZDH, ZDP block, and ZDT records for one dive.
// periodOverride forces the declared sampling period when non-zero.
func (f *DL7) writeDive(b *strings.Builder, log *types.DiveLog, i, periodOverride int, opts Options) error {
	dive := log.Dives[i]
	num := dive.Number
	if num == 0 {
		num = i + 1
	}
	period := periodOverride
	if period == 0 {
		period = dive.Computer.SamplingPeriod
	}
	if period == 0 {
		period = 1
	}

	fmt.Fprintf(b, "ZDH|%d|%d|I|Q%dS|%s|%s||PO2|\n",
		num, num, period, dive.Start.Format(dl7TimeLayout), fmtOptFloat(dive.AirTemp))

	b.WriteString("ZDP{\n")
	mix := dive.Mix
	for _, s := range dive.Samples {
		if s.Mix != "" {
			mix = s.Mix
		}
		token, err := f.gasToken(log, mix, i, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "|%s|%d|%s||%s|%s||%s||%s|\n",
			fmtFloat(float64(s.Offset)/60),
			int(s.Depth),
			token,
			flag(hasAlarm(s.Alarms, types.AlarmAscent)),
			flag(hasAlarm(s.Alarms, types.AlarmDeco)),
			fmtOptFloat(s.Temp),
			fmtOptFloat(s.Pressure),
		)
	}
	b.WriteString("ZDP}\n")

	drop := ""
	if dive.PressureIn > 0 && dive.PressureOut > 0 {
		drop = fmtFloat(dive.PressureIn - dive.PressureOut)
	}
	fmt.Fprintf(b, "ZDT|%d|%d|%s|%s|%s|%s|\n",
		num, num, fmtFloat(dive.MaxDepth), dive.End().Format(dl7TimeLayout),
		fmtOptFloat(dive.WaterTemp), drop)
	return nil
}

// gasToken encodes the sample gas column. The format cannot express
// helium: trimix and heliox mixes are truncated to their oxygen fraction
// with an explicit warning rather than silently rewritten.
func (f *DL7) gasToken(log *types.DiveLog, mixName string, diveIndex int, opts Options) (string, error) {
	if mixName == "" {
		return "1", nil
	}
	mix, ok := log.MixByName(mixName)
	if !ok {
		return "", &SerializeError{
			Format:    f.Name(),
			DiveIndex: diveIndex,
			Reason:    fmt.Sprintf("sample references unknown mix %q", mixName),
		}
	}
	if mix.He > 0 {
		opts.Warnf("dive %d: unsupported gas %q: helium fraction not representable, truncated to O2 only",
			diveIndex+1, mix.Name)
	}
	if mix.IsAir() {
		return "1", nil
	}
	return fmt.Sprintf("2.%d", mix.O2Percent()), nil
}

// field returns fields[i] or "" when the index is out of range.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// recordTag returns the tag portion of a DL7 line for error messages.
func recordTag(line string) string {
	if idx := strings.IndexByte(line, '|'); idx > 0 {
		return line[:idx]
	}
	if len(line) > 8 {
		return line[:8]
	}
	return line
}

func flag(set bool) string {
	if set {
		return "T"
	}
	return "F"
}

func hasAlarm(alarms []types.Alarm, a types.Alarm) bool {
	for _, x := range alarms {
		if x == a {
			return true
		}
	}
	return false
}

func appendAlarm(alarms []types.Alarm, a types.Alarm) []types.Alarm {
	if hasAlarm(alarms, a) {
		return alarms
	}
	return append(alarms, a)
}

// fmtFloat renders a float with the shortest exact representation so
// serialization stays deterministic.
func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func fmtOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}
