package domain

import (
	"math"
	"time"
)

// Synonym sets, first present wins.
var (
	TemperatureFields = []string{"t_2m", "tmp_level_2_m", "2t_level_2"}
	DewPointFields    = []string{"td_2m", "dpt_level_2_m", "2d_level_2"}
	HumidityFields    = []string{"relhum_2m", "rh_level_2_m", "2r_level_2"}
	WindUFields       = []string{"u_10m", "ugrd_level_10_m", "10u_level_10"}
	WindVFields       = []string{"v_10m", "vgrd_level_10_m", "10v_level_10"}
	CloudFields       = []string{"clct", "tcdc_level_entire", "tcdc_level_0"}
	PressureFields    = []string{"pmsl", "prmsl_level_0", "pres_level_surface"}
	CAPEFields        = []string{"cape_level_surface", "cape_level_0", "cape_ml"}
	PopFields         = []string{"pop", "precip_probability"}
)

// precipSource binds a precipitation field to its unit.
type precipSource struct {
	name        string
	accumulated bool    // kg/m² since run start
	scale       float64 // factor to mm over one hour
}

var precipSources = []precipSource{
	{name: "tot_prec", accumulated: true, scale: 1},
	{name: "prate_level_surface", scale: 3600},
	{name: "prate_level_0", scale: 3600},
}

// PrecipitationFields lists the precipitation aliases in resolution order.
func PrecipitationFields() []string {
	names := make([]string, len(precipSources))
	for i, s := range precipSources {
		names[i] = s.name
	}
	return names
}

const (
	kelvinMin  = 200.0
	kelvinMax  = 333.0
	celsiusMin = -80.0
	celsiusMax = 60.0

	// pascalThreshold separates Pa from hPa readings of sea-level pressure.
	pascalThreshold = 2000.0

	zeroCelsius = 273.15
)

// Conditions holds the canonical-unit quantities derived from one record:
// °C, %, hPa, m/s, degrees, mm, J/kg. A nil field was not published for the
// record, or its inputs were not.
type Conditions struct {
	Temperature       *float64  `json:"temperature,omitempty"`
	FeelsLike         *float64  `json:"feels_like,omitempty"`
	DewPoint          *float64  `json:"dew_point,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	Pressure          *float64  `json:"pressure,omitempty"`
	WindSpeed         *float64  `json:"wind_speed,omitempty"`
	WindDirection     *float64  `json:"wind_direction,omitempty"`
	CloudCover        *float64  `json:"cloud_cover,omitempty"`
	Precipitation     *float64  `json:"precipitation,omitempty"`
	PrecipProbability *float64  `json:"pop,omitempty"`
	CAPE              *float64  `json:"cape,omitempty"`
	Condition         Condition `json:"condition,omitzero"`
}

// Sample is the derived view of one record.
type Sample struct {
	Time time.Time `json:"time"`
	Conditions
}

// NormalizeTemperature converts a Kelvin- or Celsius-range value to °C.
// The second result is false when v fits neither range.
func NormalizeTemperature(v float64) (float64, bool) {
	switch {
	case v >= kelvinMin && v <= kelvinMax:
		return v - zeroCelsius, true
	case v >= celsiusMin && v <= celsiusMax:
		return v, true
	default:
		return 0, false
	}
}

// NormalizePressure converts Pa or hPa to hPa.
func NormalizePressure(v float64) float64 {
	if v > pascalThreshold {
		return v / 100
	}
	return v
}

// Wind returns speed and meteorological direction from u/v components.
// Direction is 0 when the air is calm.
func Wind(u, v float64) (speed, direction float64) {
	speed = math.Sqrt(u*u + v*v)
	if speed == 0 {
		return 0, 0
	}
	direction = math.Atan2(u, v) * 180 / math.Pi
	if direction < 0 {
		direction += 360
	}
	if direction >= 360 {
		direction -= 360
	}
	return speed, direction
}

// DewPoint approximates the dew point in °C from temperature and relative humidity.
func DewPoint(tempC, humidity float64) float64 {
	return tempC - (100-humidity)/5
}

// FeelsLike returns the apparent temperature in °C given wind speed in m/s.
func FeelsLike(tempC, humidity, windSpeed float64) float64 {
	if tempC < 10 && windSpeed > 1.3 {
		kmh := math.Pow(windSpeed*3.6, 0.16)
		return 13.12 + 0.6215*tempC - 11.37*kmh + 0.3965*tempC*kmh
	}
	if tempC > 27 && humidity > 40 {
		const (
			c1 = -8.78469475556
			c2 = 1.61139411
			c3 = 2.33854883889
			c4 = -0.14611605
			c5 = -0.012308094
			c6 = -0.0164248277778
			c7 = 0.002211732
			c8 = 0.00072546
			c9 = -0.000003582
		)
		t, r := tempC, humidity
		return c1 + c2*t + c3*r + c4*t*r + c5*t*t + c6*r*r + c7*t*t*r + c8*t*r*r + c9*t*t*r*r
	}
	return tempC
}

// Derive computes the canonical quantities of one field bag. Precipitation
// from an accumulated field is returned as the running total; DeriveSeries
// turns it into per-step amounts.
func Derive(f Fields) Conditions {
	c, _ := derive(f)
	c.Condition = Classify(c)
	return c
}

func derive(f Fields) (Conditions, bool) {
	var c Conditions

	if v, _, ok := f.First(TemperatureFields...); ok {
		if tC, ok := NormalizeTemperature(v); ok {
			c.Temperature = ptr(tC)
		}
	}
	if v, _, ok := f.First(HumidityFields...); ok {
		c.Humidity = ptr(v)
	}

	u, _, uok := f.First(WindUFields...)
	v, _, vok := f.First(WindVFields...)
	if uok && vok {
		speed, dir := Wind(u, v)
		c.WindSpeed, c.WindDirection = ptr(speed), ptr(dir)
	}

	if p, _, ok := f.First(PressureFields...); ok {
		c.Pressure = ptr(NormalizePressure(p))
	}
	if cl, _, ok := f.First(CloudFields...); ok {
		c.CloudCover = ptr(cl)
	}
	if cape, _, ok := f.First(CAPEFields...); ok {
		c.CAPE = ptr(cape)
	}
	if pop, _, ok := f.First(PopFields...); ok {
		c.PrecipProbability = ptr(pop)
	}

	if td, _, ok := f.First(DewPointFields...); ok {
		if tdC, ok := NormalizeTemperature(td); ok {
			c.DewPoint = ptr(tdC)
		}
	}
	if c.DewPoint == nil && c.Temperature != nil && c.Humidity != nil {
		c.DewPoint = ptr(DewPoint(*c.Temperature, *c.Humidity))
	}

	accumulated := false
	for _, src := range precipSources {
		if p, ok := f[src.name]; ok {
			c.Precipitation = ptr(p * src.scale)
			accumulated = src.accumulated
			break
		}
	}

	if c.Temperature != nil && c.Humidity != nil && c.WindSpeed != nil {
		c.FeelsLike = ptr(FeelsLike(*c.Temperature, *c.Humidity, *c.WindSpeed))
	}
	return c, accumulated
}

// DeriveSeries derives every record of one run in time order. Accumulated
// precipitation is differenced against the previous record that carried it,
// clamped at 0.
func DeriveSeries(records []Record) []Sample {
	out := make([]Sample, 0, len(records))
	prevTotal, havePrev := 0.0, false
	for _, r := range records {
		c, accumulated := derive(r.Fields)
		if accumulated {
			total := *c.Precipitation
			if havePrev {
				c.Precipitation = ptr(math.Max(0, total-prevTotal))
			}
			prevTotal, havePrev = total, true
		}
		c.Condition = Classify(c)
		out = append(out, Sample{Time: r.ValidTime.UTC(), Conditions: c})
	}
	return out
}

func ptr(v float64) *float64 { return &v }
