package models

import (
	"errors"
	"fmt"
	"strings"
)

// ColumnType is the physical quantity a column holds.
type ColumnType int

const (
	SerialNumber ColumnType = iota
	Date
	Time
	TimeOfDay
	Pressure
	Temperature
	FlowRate
	Depth
	Viscosity
	Density
	Permeability
	Porosity
	WellRadius
	SkinFactor
	Distance
	Volume
	PressureDrop
	Custom
)

var columnTypeNames = [...]string{
	SerialNumber: "serial_number",
	Date:         "date",
	Time:         "time",
	TimeOfDay:    "time_of_day",
	Pressure:     "pressure",
	Temperature:  "temperature",
	FlowRate:     "flow_rate",
	Depth:        "depth",
	Viscosity:    "viscosity",
	Density:      "density",
	Permeability: "permeability",
	Porosity:     "porosity",
	WellRadius:   "well_radius",
	SkinFactor:   "skin_factor",
	Distance:     "distance",
	Volume:       "volume",
	PressureDrop: "pressure_drop",
	Custom:       "custom",
}

func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// IsNumeric reports whether cells of this type are expected to hold numbers.
func (t ColumnType) IsNumeric() bool {
	switch t {
	case Date, TimeOfDay, Custom:
		return false
	case SerialNumber, Time, Pressure, Temperature, FlowRate, Depth, Viscosity,
		Density, Permeability, Porosity, WellRadius, SkinFactor, Distance,
		Volume, PressureDrop:
		return true
	}
	return false
}

// ParseColumnType accepts the snake_case names used in the API and CLI.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range columnTypeNames {
		if name == s {
			return ColumnType(i), nil
		}
	}
	return Custom, fmt.Errorf("unknown column type %q", s)
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	parsed, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const DefaultDecimalPlaces = 3

type ColumnDefinition struct {
	Name          string     `json:"name"`
	Type          ColumnType `json:"type"`
	Unit          string     `json:"unit"`
	IsRequired    bool       `json:"is_required"`
	DecimalPlaces int        `json:"decimal_places"`
}

// NewColumnDefinition returns a Custom column with the default precision.
func NewColumnDefinition(name string) ColumnDefinition {
	return ColumnDefinition{
		Name:          name,
		Type:          Custom,
		DecimalPlaces: DefaultDecimalPlaces,
	}
}

type TimeUnit string

const (
	Hours   TimeUnit = "h"
	Minutes TimeUnit = "min"
	Seconds TimeUnit = "s"
)

func ParseTimeUnit(s string) (TimeUnit, error) {
	switch u := TimeUnit(strings.TrimSpace(s)); u {
	case Hours, Minutes, Seconds:
		return u, nil
	}
	return "", fmt.Errorf("unknown time unit %q (want h, min or s)", s)
}

// TimeConversionConfig selects the input columns for a time conversion.
// UseDateAndTime picks DateColumnIndex+TimeColumnIndex, otherwise
// SourceTimeColumnIndex is read as an elapsed time-of-day sequence.
type TimeConversionConfig struct {
	UseDateAndTime        bool     `json:"use_date_and_time"`
	DateColumnIndex       int      `json:"date_column_index"`
	TimeColumnIndex       int      `json:"time_column_index"`
	SourceTimeColumnIndex int      `json:"source_time_column_index"`
	NewColumnName         string   `json:"new_column_name"`
	OutputUnit            TimeUnit `json:"output_unit"`
}

// DefaultTimeConversionConfig mirrors the conversion dialog defaults.
func DefaultTimeConversionConfig() TimeConversionConfig {
	return TimeConversionConfig{
		NewColumnName: "时间",
		OutputUnit:    Hours,
	}
}

// CalculationResult is what a derived-column calculation reports back.
type CalculationResult struct {
	Success          bool   `json:"success"`
	ErrorMessage     string `json:"error_message,omitempty"`
	AddedColumnIndex int    `json:"added_column_index"`
	ColumnName       string `json:"column_name"`
	ProcessedRows    int    `json:"processed_rows"`

	err error
}

type TimeConversionResult = CalculationResult
type PressureDropResult = CalculationResult

// Failed builds an unsuccessful result carrying err.
func Failed(err error) CalculationResult {
	return CalculationResult{ErrorMessage: err.Error(), AddedColumnIndex: -1, err: err}
}

// Err returns the precondition failure, or nil for a successful result.
func (r CalculationResult) Err() error {
	if r.Success {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	if r.ErrorMessage != "" {
		return errors.New(r.ErrorMessage)
	}
	return errors.New("calculation failed")
}
