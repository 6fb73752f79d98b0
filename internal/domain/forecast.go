package domain

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// CurrentWindow bounds how far the nearest record may be from now to
	// count as current.
	CurrentWindow = time.Hour

	DefaultHourlyHorizon = 48
	DefaultDailyHorizon  = 7

	sunriseHour = 6
	sunsetHour  = 18
)

// Daily aggregates one UTC calendar day. A nil field had no value on any
// sample of the day.
type Daily struct {
	Date              time.Time `json:"date"`
	TempMin           *float64  `json:"temp_min,omitempty"`
	TempMax           *float64  `json:"temp_max,omitempty"`
	TempMean          *float64  `json:"temp_mean,omitempty"`
	Humidity          *float64  `json:"humidity,omitempty"`
	Pressure          *float64  `json:"pressure,omitempty"`
	WindSpeedMax      *float64  `json:"wind_speed_max,omitempty"`
	Precipitation     *float64  `json:"precipitation,omitempty"`
	PrecipProbability *float64  `json:"pop,omitempty"`
	Condition         Condition `json:"condition,omitzero"`
	Sunrise           time.Time `json:"sunrise"`
	Sunset            time.Time `json:"sunset"`
}

// Forecast is the set of views derived from one run's series.
type Forecast struct {
	Current *Sample  `json:"current,omitempty"`
	Hourly  []Sample `json:"hourly"`
	Daily   []Daily  `json:"daily"`
}

// BuildForecast derives the current, hourly and daily views at now.
// samples must be in ascending time order.
func BuildForecast(samples []Sample, now time.Time, hourly, days int) Forecast {
	f := Forecast{
		Hourly: HourlySamples(samples, now, hourly),
		Daily:  DailySummaries(samples, now, days),
	}
	if cur, ok := CurrentSample(samples, now); ok {
		f.Current = &cur
	}
	return f
}

// CurrentSample returns the sample nearest to now if it lies within CurrentWindow.
func CurrentSample(samples []Sample, now time.Time) (Sample, bool) {
	best := -1
	var bestDiff time.Duration
	for i, s := range samples {
		d := s.Time.Sub(now)
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	if best < 0 || bestDiff > CurrentWindow {
		return Sample{}, false
	}
	return samples[best], true
}

// HourlySamples returns up to limit samples at or after now.
func HourlySamples(samples []Sample, now time.Time, limit int) []Sample {
	start := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Time.Before(now)
	})
	end := min(start+limit, len(samples))
	if start >= end {
		return []Sample{}
	}
	out := make([]Sample, end-start)
	copy(out, samples[start:end])
	return out
}

// DailySummaries groups samples by UTC day, starting with the day of now,
// and aggregates up to days days.
func DailySummaries(samples []Sample, now time.Time, days int) []Daily {
	today := truncateDay(now)
	out := []Daily{}
	var group []Sample
	var groupDay time.Time

	flush := func() {
		if len(group) > 0 && len(out) < days {
			out = append(out, aggregateDay(groupDay, group))
		}
		group = nil
	}

	for _, s := range samples {
		day := truncateDay(s.Time)
		if day.Before(today) {
			continue
		}
		if !day.Equal(groupDay) {
			flush()
			groupDay = day
		}
		group = append(group, s)
	}
	flush()
	return out
}

func aggregateDay(day time.Time, group []Sample) Daily {
	var temps, humidity, pressure, wind, precip, pop []float64
	var classified []Condition
	for _, s := range group {
		temps = appendPresent(temps, s.Temperature)
		humidity = appendPresent(humidity, s.Humidity)
		pressure = appendPresent(pressure, s.Pressure)
		wind = appendPresent(wind, s.WindSpeed)
		precip = appendPresent(precip, s.Precipitation)
		pop = appendPresent(pop, s.PrecipProbability)
		if s.Condition != (Condition{}) {
			classified = append(classified, s.Condition)
		}
	}

	d := Daily{
		Date:              day,
		TempMin:           reduce(temps, floats.Min),
		TempMax:           reduce(temps, floats.Max),
		TempMean:          reduce(temps, mean),
		Humidity:          reduce(humidity, mean),
		Pressure:          reduce(pressure, mean),
		WindSpeedMax:      reduce(wind, floats.Max),
		Precipitation:     reduce(precip, floats.Sum),
		PrecipProbability: reduce(pop, floats.Max),
		Sunrise:           day.Add(sunriseHour * time.Hour),
		Sunset:            day.Add(sunsetHour * time.Hour),
	}
	if len(classified) > 0 {
		d.Condition = classified[len(classified)/2]
	}
	return d
}

func appendPresent(dst []float64, v *float64) []float64 {
	if v == nil {
		return dst
	}
	return append(dst, *v)
}

// reduce applies fn to vs, or returns nil when vs is empty.
func reduce(vs []float64, fn func([]float64) float64) *float64 {
	if len(vs) == 0 {
		return nil
	}
	return ptr(fn(vs))
}

func mean(vs []float64) float64 { return stat.Mean(vs, nil) }

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
