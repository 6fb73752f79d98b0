package domain

import (
	"fmt"
	"strings"
	"time"
)

// Units selects the unit system of a Weather response.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

const (
	mpsToMph     = 2.2369362920544
	hpaToInHg    = 0.0295299830714
	mmToInches   = 1 / 25.4
	fahrenheitK  = 9.0 / 5.0
	fahrenheit0C = 32.0
)

// ParseUnits accepts "metric", "imperial", or an empty string (metric).
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitsMetric:
		return UnitsMetric, nil
	case UnitsImperial:
		return UnitsImperial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnits, s)
	}
}

// Location describes where a Weather response applies.
type Location struct {
	Name     string  `json:"name,omitempty"`
	Country  string  `json:"country,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// Source describes the forecast a response was derived from.
type Source struct {
	Model        string    `json:"model"`
	Run          string    `json:"run"`
	CellID       int64     `json:"cell_id"`
	ResolutionKm float64   `json:"resolution_km"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	ForecastEnd  time.Time `json:"forecast_end"`
}

// Weather is the full query response.
type Weather struct {
	Location Location `json:"location"`
	Source   Source   `json:"source"`
	Units    Units    `json:"units"`
	Forecast
}

// ConvertUnits rewrites every view of w into u. Canonical data is metric, so
// converting to metric is a no-op.
func (w *Weather) ConvertUnits(u Units) {
	if u != UnitsImperial || w.Units == UnitsImperial {
		return
	}
	w.Units = UnitsImperial
	if w.Current != nil {
		w.Current.Conditions = imperialConditions(w.Current.Conditions)
	}
	for i := range w.Hourly {
		w.Hourly[i].Conditions = imperialConditions(w.Hourly[i].Conditions)
	}
	for i := range w.Daily {
		d := &w.Daily[i]
		d.TempMin = convert(d.TempMin, CelsiusToFahrenheit)
		d.TempMax = convert(d.TempMax, CelsiusToFahrenheit)
		d.TempMean = convert(d.TempMean, CelsiusToFahrenheit)
		d.Pressure = convert(d.Pressure, scaleBy(hpaToInHg))
		d.WindSpeedMax = convert(d.WindSpeedMax, scaleBy(mpsToMph))
		d.Precipitation = convert(d.Precipitation, scaleBy(mmToInches))
	}
}

func imperialConditions(c Conditions) Conditions {
	c.Temperature = convert(c.Temperature, CelsiusToFahrenheit)
	c.FeelsLike = convert(c.FeelsLike, CelsiusToFahrenheit)
	c.DewPoint = convert(c.DewPoint, CelsiusToFahrenheit)
	c.Pressure = convert(c.Pressure, scaleBy(hpaToInHg))
	c.WindSpeed = convert(c.WindSpeed, scaleBy(mpsToMph))
	c.Precipitation = convert(c.Precipitation, scaleBy(mmToInches))
	return c
}

// convert returns a new pointer so samples sharing a value are not
// converted twice.
func convert(v *float64, fn func(float64) float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(fn(*v))
}

func scaleBy(k float64) func(float64) float64 {
	return func(v float64) float64 { return v * k }
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*fahrenheitK + fahrenheit0C
}
