// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"fmt"
	"strings"

	"github.com/vchene/divelog-convert/pkg/types"
)

// diverlogSamplingPeriod is the only sampling period the DiverLog+
// application accepts in the dive header.
const diverlogSamplingPeriod = 30

// Diverlog writes the DL7 variant consumed by the Aqualung DiverLog+
// application: one export unit per dive, with an AQUALUNG application
// block inside the ZAR record. Parsing shares the DL7 line grammar; the
// application block is opaque and skipped.
type Diverlog struct {
	*DL7
}

// NewDiverlog returns the diverlog codec for cfg.
func NewDiverlog(cfg types.Config) *Diverlog {
	return &Diverlog{DL7: NewDL7(cfg)}
}

// Name returns the format tag.
func (f *Diverlog) Name() string { return "diverlog" }

// SerializeEach writes one export unit per dive. Device model and serial
// are mandatory in this format.
func (f *Diverlog) SerializeEach(log *types.DiveLog, opts Options) ([]Unit, error) {
	units := make([]Unit, 0, len(log.Dives))
	for i := range log.Dives {
		if err := f.requireDevice(log.Dives[i], i); err != nil {
			return nil, err
		}
		var b strings.Builder
		f.writeFileHeader(&b, log)
		f.writeZAR(&b, log, i)
		if err := f.writeDive(&b, log, i, diverlogSamplingPeriod, opts); err != nil {
			return nil, err
		}
		units = append(units, Unit{
			Name: fmt.Sprintf("%d", i+1),
			Data: []byte(b.String()),
		})
	}
	return units, nil
}

// Serialize writes a single-dive log as one document. Multi-dive logs
// must go through SerializeEach; the format holds one dive per file.
func (f *Diverlog) Serialize(log *types.DiveLog, opts Options) ([]byte, error) {
	if len(log.Dives) != 1 {
		return nil, &SerializeError{
			Format:    f.Name(),
			DiveIndex: -1,
			Reason:    fmt.Sprintf("format holds one dive per file, log has %d", len(log.Dives)),
		}
	}
	units, err := f.SerializeEach(log, opts)
	if err != nil {
		return nil, err
	}
	return units[0].Data, nil
}

func (f *Diverlog) requireDevice(d types.Dive, i int) error {
	if d.Computer.Model == "" || d.Computer.Serial == "" {
		return &SerializeError{
			Format:    f.Name(),
			DiveIndex: i,
			Reason:    "dive computer model and serial are required",
		}
	}
	return nil
}

// writeZAR emits the AQUALUNG application block for one dive.
func (f *Diverlog) writeZAR(b *strings.Builder, log *types.DiveLog, i int) {
	dive := log.Dives[i]
	num := dive.Number
	if num == 0 {
		num = i + 1
	}
	now := f.Now()

	b.WriteString("ZAR{\n<AQUALUNG>\n<APP>DiverLog+</APP>\n")
	fmt.Fprintf(b, "<DUID>%s_%s_%s_%d</DUID>\n",
		dive.Computer.Model, dive.Computer.Serial, now.Format(dl7TimeLayout), num)
	b.WriteString("<TITLE> </TITLE>\n")
	fmt.Fprintf(b, "<DIVE_DT>%s</DIVE_DT>\n", dive.Start.Format(dl7TimeLayout))
	fmt.Fprintf(b, "<FILE_DT>%s</FILE_DT>\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("<DIVE_MODE>0</DIVE_MODE>\n")
	fmt.Fprintf(b, "<PDC_MODEL>%s</PDC_MODEL>\n", dive.Computer.Model)
	fmt.Fprintf(b, "<PDC_SERIAL>%s</PDC_SERIAL>\n", dive.Computer.Serial)
	fmt.Fprintf(b, "<MANUFACTURER>%s</MANUFACTURER>\n", dive.Computer.Manufacturer)
	fmt.Fprintf(b, "<PDC_FIRMWARE>%s</PDC_FIRMWARE>\n", dive.Computer.Firmware)
	fmt.Fprintf(b, "<DIVER_NAME>LASTNAME=[%s %s]</DIVER_NAME>\n",
		f.cfg.DiverFirstName, f.cfg.DiverLastName)

	site := dive.Site
	fmt.Fprintf(b, "<LOCATION>DIVESITE=[%s],GPS=[%s,%s],LOCNAME=[%s],CITY=[%s],STATE/PROVINCE=[%s],",
		site.Name, fmtOptFloat(site.Lat), fmtOptFloat(site.Lon), site.Location, site.City, site.Province)
	fmt.Fprintf(b, "COUNTRY=[%s],AIRTEMP=%s,SURFACETEMP=%s,MINTEMP=%s</LOCATION>\n",
		site.Country, fmtOptFloat(dive.AirTemp), fmtOptFloat(dive.SurfaceTemp), fmtOptFloat(dive.WaterTemp))

	fmt.Fprintf(b, "<RATING>%d</RATING>\n", dive.Rating)

	h := dive.Duration / 3600
	m := (dive.Duration % 3600) / 60
	s := dive.Duration % 60
	fmt.Fprintf(b, "<DIVESTATS>DIVENO=%d,DATATYPE=8,DECO=N,VIOL=%s,MODE=0,MANUALDIVE=0,EDT=%d%d%d,",
		num, flagYN(len(dive.Alarms) > 0), h, m, s)
	fmt.Fprintf(b, "SI=000000,MAXDEPTH=%s,MAXO2=0,PO2=%d,MINTEMP=%s</DIVESTATS>\n",
		fmtFloat(dive.MaxDepth), f.primaryPO2(log, dive), fmtOptFloat(dive.WaterTemp))

	if dive.TankName != "" || dive.TankVolume > 0 {
		fmt.Fprintf(b, "<TANK>NUMBER=1,TID=0,ON=Y,CYLNAME=[%s],CYLSIZE=%d%s,WORKINGPRESSURE=3000PSI,",
			dive.TankName, dive.TankVolume, f.cfg.UnitVolume)
		fmt.Fprintf(b, "STARTPRESSURE=%s,ENDPRESSURE=%s,FO2=0,AVGDEPTH=%s,DIVETIME=%d,SAC=0</TANK>\n",
			fmtFloat(dive.PressureIn), fmtFloat(dive.PressureOut), fmtFloat(dive.AvgDepth), dive.DurationMin())
	}

	b.WriteString("</AQUALUNG>\n}\n")
}

// primaryPO2 returns the oxygen percentage of the dive's primary mix,
// defaulting to air.
func (f *Diverlog) primaryPO2(log *types.DiveLog, dive types.Dive) int {
	if dive.Mix != "" {
		if mix, ok := log.MixByName(dive.Mix); ok {
			return mix.O2Percent()
		}
	}
	return types.Air().O2Percent()
}

func flagYN(set bool) string {
	if set {
		return "Y"
	}
	return "N"
}
