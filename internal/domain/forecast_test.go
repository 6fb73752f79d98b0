package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)

func hourlySamples(start time.Time, temps ...float64) []Sample {
	out := make([]Sample, len(temps))
	for i, temp := range temps {
		out[i] = Sample{
			Time:       start.Add(time.Duration(i) * time.Hour),
			Conditions: Conditions{Temperature: ptr(temp), Pressure: ptr(1010), WindSpeed: ptr(float64(i))},
		}
	}
	return out
}

func TestCurrentSample(t *testing.T) {
	samples := hourlySamples(testDay.Add(12*time.Hour), 25, 27, 26)

	t.Run("nearest record", func(t *testing.T) {
		cur, ok := CurrentSample(samples, testDay.Add(13*time.Hour+5*time.Minute))
		require.True(t, ok)
		assert.Equal(t, testDay.Add(13*time.Hour), cur.Time)
		assert.Equal(t, 27.0, *cur.Temperature)
	})

	t.Run("exactly one hour away", func(t *testing.T) {
		cur, ok := CurrentSample(samples, testDay.Add(15*time.Hour))
		require.True(t, ok)
		assert.Equal(t, testDay.Add(14*time.Hour), cur.Time)
	})

	t.Run("stale data", func(t *testing.T) {
		_, ok := CurrentSample(samples, testDay.Add(15*time.Hour+time.Minute))
		assert.False(t, ok)
	})

	t.Run("no samples", func(t *testing.T) {
		_, ok := CurrentSample(nil, testDay)
		assert.False(t, ok)
	})
}

func TestHourlySamples(t *testing.T) {
	samples := hourlySamples(testDay.Add(12*time.Hour), 25, 27, 26)

	got := HourlySamples(samples, testDay.Add(12*time.Hour+30*time.Minute), 2)
	require.Len(t, got, 2)
	assert.Equal(t, testDay.Add(13*time.Hour), got[0].Time)
	assert.Equal(t, testDay.Add(14*time.Hour), got[1].Time)

	assert.Len(t, HourlySamples(samples, testDay, 48), 3)
	assert.Empty(t, HourlySamples(samples, testDay.Add(20*time.Hour), 48))
}

func TestDailySummaries_SingleDay(t *testing.T) {
	samples := hourlySamples(testDay.Add(10*time.Hour), 10, 15, 20, 18, 12)
	samples[1].Precipitation = ptr(1.5)
	samples[3].Precipitation = ptr(0.5)
	samples[2].PrecipProbability = ptr(70)
	samples[2].Condition = ConditionLightRain

	days := DailySummaries(samples, testDay.Add(8*time.Hour), 7)

	require.Len(t, days, 1)
	d := days[0]
	assert.Equal(t, testDay, d.Date)
	assert.Equal(t, 10.0, *d.TempMin)
	assert.Equal(t, 20.0, *d.TempMax)
	assert.InDelta(t, 15.0, *d.TempMean, 1e-9)
	assert.InDelta(t, 1010.0, *d.Pressure, 1e-9)
	assert.Equal(t, 4.0, *d.WindSpeedMax)
	assert.InDelta(t, 2.0, *d.Precipitation, 1e-9)
	assert.Equal(t, 70.0, *d.PrecipProbability)
	assert.Nil(t, d.Humidity)
	assert.Equal(t, ConditionLightRain, d.Condition)
	assert.Equal(t, testDay.Add(6*time.Hour), d.Sunrise)
	assert.Equal(t, testDay.Add(18*time.Hour), d.Sunset)
}

func TestDailySummaries_GroupsAndCaps(t *testing.T) {
	var samples []Sample
	for day := range 10 {
		samples = append(samples, hourlySamples(testDay.AddDate(0, 0, day), float64(day), float64(day)+1)...)
	}

	days := DailySummaries(samples, testDay.AddDate(0, 0, 1).Add(9*time.Hour), 7)

	require.Len(t, days, 7)
	assert.Equal(t, testDay.AddDate(0, 0, 1), days[0].Date)
	assert.Equal(t, 1.0, *days[0].TempMin)
	assert.Equal(t, testDay.AddDate(0, 0, 7), days[6].Date)
}

func TestDailySummaries_SkipsMissingValues(t *testing.T) {
	base := testDay.Add(9 * time.Hour)
	records := []Record{
		{ValidTime: base, Fields: Fields{"t_2m": 30, "u_10m": 3, "v_10m": 4}},
		{ValidTime: base.Add(time.Hour), Fields: Fields{"relhum_2m": 50}},
		{ValidTime: base.Add(2 * time.Hour), Fields: Fields{"t_2m": 32}},
		{ValidTime: base.Add(3 * time.Hour), Fields: Fields{"relhum_2m": 60, "clct": 90}},
		{ValidTime: base.Add(4 * time.Hour), Fields: Fields{"t_2m": 34}},
	}

	days := DailySummaries(DeriveSeries(records), testDay, 7)

	require.Len(t, days, 1)
	d := days[0]
	require.NotNil(t, d.TempMin)
	assert.Equal(t, 30.0, *d.TempMin)
	assert.InDelta(t, 32.0, *d.TempMean, 1e-9)
	assert.Equal(t, 34.0, *d.TempMax)
	assert.InDelta(t, 55.0, *d.Humidity, 1e-9)
	assert.InDelta(t, 5.0, *d.WindSpeedMax, 1e-9)
	assert.Nil(t, d.Pressure)
	assert.Nil(t, d.Precipitation)
	assert.Equal(t, ConditionOvercast, d.Condition)
}

func TestBuildForecast(t *testing.T) {
	samples := hourlySamples(testDay.Add(12*time.Hour), 25, 27, 26)
	now := testDay.Add(12*time.Hour + 30*time.Minute)

	f := BuildForecast(samples, now, 2, 7)

	require.NotNil(t, f.Current)
	assert.Equal(t, testDay.Add(12*time.Hour), f.Current.Time)
	want := []time.Time{testDay.Add(13 * time.Hour), testDay.Add(14 * time.Hour)}
	var got []time.Time
	for _, s := range f.Hourly {
		got = append(got, s.Time)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hourly times mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, f.Daily, 1)
}
