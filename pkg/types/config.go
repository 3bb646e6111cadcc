// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Config holds the format-conversion settings that used to be hardcoded
// in logbook exporters: diver identity, unit labels, dive-computer
// defaults, and the diviac date/time conventions. Values load from the
// config file or environment and apply per conversion, so concurrent
// conversions with different settings stay independent.
type Config struct {
	// DiverFirstName and DiverLastName identify the logbook owner for
	// formats that embed a diver record.
	DiverFirstName string `mapstructure:"diver_first_name" yaml:"diver_first_name"`
	DiverLastName  string `mapstructure:"diver_last_name" yaml:"diver_last_name"`

	// Unit labels appended to or stripped from diviac CSV values and
	// written into DL7 headers. Canonical storage is always metric.
	UnitDistance    string `mapstructure:"unit_distance" yaml:"unit_distance"`
	UnitTemperature string `mapstructure:"unit_temperature" yaml:"unit_temperature"`
	UnitPressure    string `mapstructure:"unit_pressure" yaml:"unit_pressure"`
	UnitVolume      string `mapstructure:"unit_volume" yaml:"unit_volume"`

	// Dive-computer defaults used when a source format carries no device
	// metadata but the target format requires it.
	PDCManufacturer string `mapstructure:"pdc_manufacturer" yaml:"pdc_manufacturer"`
	PDCModel        string `mapstructure:"pdc_model" yaml:"pdc_model"`
	PDCSerial       string `mapstructure:"pdc_serial" yaml:"pdc_serial"`

	// Diviac CSV date and time conventions.
	DateOrderDMY bool `mapstructure:"date_order_dmy" yaml:"date_order_dmy"`
	Time24h      bool `mapstructure:"time_24h" yaml:"time_24h"`

	// CSVColumns overrides the diviac column header used for a canonical
	// field, keyed by the canonical field name.
	CSVColumns map[string]string `mapstructure:"csv_columns" yaml:"csv_columns,omitempty"`
}

// DefaultConfig returns the settings matching the diviac export defaults.
func DefaultConfig() Config {
	return Config{
		DiverFirstName:  "Vivien",
		DiverLastName:   "Chene",
		UnitDistance:    "m",
		UnitTemperature: "C",
		UnitPressure:    "bar",
		UnitVolume:      "L",
		PDCManufacturer: "Uwatec",
		PDCModel:        "SmartZ",
		PDCSerial:       "123456",
		DateOrderDMY:    true,
		Time24h:         true,
	}
}

// DiviacDateLayout returns the Go time layout for the diviac Date column.
func (c Config) DiviacDateLayout() string {
	if c.DateOrderDMY {
		return "02-01-2006"
	}
	return "01-02-2006"
}

// DiviacTimeLayout returns the Go time layout for the diviac time columns.
func (c Config) DiviacTimeLayout() string {
	if c.Time24h {
		return "15:04"
	}
	return "3:04PM"
}

// DiviacDateTimeLayout combines the date and time layouts.
func (c Config) DiviacDateTimeLayout() string {
	return c.DiviacDateLayout() + " " + c.DiviacTimeLayout()
}
