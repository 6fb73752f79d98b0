package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTemperature(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
		ok   bool
	}{
		{"kelvin", 295.15, 22, true},
		{"celsius", 22, 22, true},
		{"kelvin lower bound", 200, -73.15, true},
		{"celsius lower bound", -80, -80, true},
		{"between ranges", 100, 0, false},
		{"above kelvin range", 400, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTemperature(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormalizeTemperature_KelvinAndCelsiusAgree(t *testing.T) {
	fromK, ok := NormalizeTemperature(300)
	assert.True(t, ok)
	fromC, ok := NormalizeTemperature(26.85)
	assert.True(t, ok)
	assert.InDelta(t, fromC, fromK, 1e-9)

	k, _ := NormalizeTemperature(295.15)
	c, _ := NormalizeTemperature(22)
	assert.InDelta(t, c, k, 0.01)
}

func TestNormalizePressure(t *testing.T) {
	assert.InDelta(t, 1013.25, NormalizePressure(101325), 1e-9)
	assert.InDelta(t, 1013.25, NormalizePressure(1013.25), 1e-9)
}

func TestWind(t *testing.T) {
	t.Run("calm", func(t *testing.T) {
		speed, dir := Wind(0, 0)
		assert.Equal(t, 0.0, speed)
		assert.Equal(t, 0.0, dir)
		assert.False(t, math.IsNaN(dir))
	})

	tests := []struct {
		name      string
		u, v      float64
		speed     float64
		direction float64
	}{
		{"northward", 0, 5, 5, 0},
		{"eastward", 3, 0, 3, 90},
		{"southward", 0, -2, 2, 180},
		{"westward", -4, 0, 4, 270},
		{"3-4-5", 3, 4, 5, 36.8698976},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speed, dir := Wind(tt.u, tt.v)
			assert.InDelta(t, tt.speed, speed, 1e-6)
			assert.InDelta(t, tt.direction, dir, 1e-6)
			assert.GreaterOrEqual(t, dir, 0.0)
			assert.Less(t, dir, 360.0)
		})
	}
}

func TestDewPoint(t *testing.T) {
	assert.InDelta(t, 13.0, DewPoint(25, 40), 1e-9)
	assert.InDelta(t, 25.0, DewPoint(25, 100), 1e-9)
}

func TestFeelsLike(t *testing.T) {
	t.Run("wind chill", func(t *testing.T) {
		got := FeelsLike(0, 80, 5)
		assert.Less(t, got, 0.0)
		kmh := math.Pow(18, 0.16)
		assert.InDelta(t, 13.12-11.37*kmh, got, 1e-9)
	})

	t.Run("heat index", func(t *testing.T) {
		got := FeelsLike(32, 60, 2)
		assert.Greater(t, got, 32.0)
	})

	t.Run("cold but calm", func(t *testing.T) {
		assert.Equal(t, 5.0, FeelsLike(5, 50, 1))
	})

	t.Run("warm but dry", func(t *testing.T) {
		assert.Equal(t, 30.0, FeelsLike(30, 30, 3))
	})

	t.Run("mild", func(t *testing.T) {
		assert.Equal(t, 20.0, FeelsLike(20, 70, 8))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   Conditions
		want Condition
	}{
		{"snow", Conditions{Precipitation: ptr(1), Temperature: ptr(-2)}, ConditionSnow},
		{"snow beats thunderstorm", Conditions{Precipitation: ptr(1), Temperature: ptr(-2), CAPE: ptr(2000)}, ConditionSnow},
		{"thunderstorm", Conditions{Precipitation: ptr(1), Temperature: ptr(20), CAPE: ptr(1500)}, ConditionThunderstorm},
		{"heavy rain", Conditions{Precipitation: ptr(6), Temperature: ptr(10)}, ConditionHeavyRain},
		{"light rain", Conditions{Precipitation: ptr(0.2), Temperature: ptr(10), CloudCover: ptr(100)}, ConditionLightRain},
		{"rain without temperature", Conditions{Precipitation: ptr(0.2)}, ConditionLightRain},
		{"overcast", Conditions{CloudCover: ptr(90)}, ConditionOvercast},
		{"scattered", Conditions{CloudCover: ptr(50)}, ConditionScattered},
		{"clear", Conditions{CloudCover: ptr(20)}, ConditionClear},
		{"dry without cloud cover", Conditions{Precipitation: ptr(0)}, ConditionClear},
		{"nothing known", Conditions{Temperature: ptr(20)}, Condition{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestDerive_Synonyms(t *testing.T) {
	t.Run("first present wins", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 20, "tmp_level_2_m": 300})
		require.NotNil(t, c.Temperature)
		assert.InDelta(t, 20.0, *c.Temperature, 1e-9)
	})

	t.Run("alternate names", func(t *testing.T) {
		c := Derive(Fields{
			"tmp_level_2_m":     293.15,
			"rh_level_2_m":      55,
			"ugrd_level_10_m":   3,
			"vgrd_level_10_m":   4,
			"prmsl_level_0":     101000,
			"tcdc_level_entire": 50,
		})
		require.NotNil(t, c.Temperature)
		assert.InDelta(t, 20.0, *c.Temperature, 1e-9)
		assert.Equal(t, 55.0, *c.Humidity)
		assert.InDelta(t, 5.0, *c.WindSpeed, 1e-9)
		assert.InDelta(t, 1010.0, *c.Pressure, 1e-9)
		assert.Equal(t, ConditionScattered, c.Condition)
	})

	t.Run("precipitation rate scaled to mm per hour", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 15, "prate_level_surface": 0.001})
		assert.InDelta(t, 3.6, *c.Precipitation, 1e-9)
		assert.Equal(t, ConditionLightRain, c.Condition)
	})

	t.Run("published dew point preferred", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 288.15, "relhum_2m": 50, "td_2m": 278.15})
		require.NotNil(t, c.DewPoint)
		assert.InDelta(t, 5.0, *c.DewPoint, 1e-9)
	})

	t.Run("dew point approximated", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 25, "relhum_2m": 40})
		require.NotNil(t, c.DewPoint)
		assert.InDelta(t, 13.0, *c.DewPoint, 1e-9)
	})

	t.Run("empty bag", func(t *testing.T) {
		assert.Equal(t, Conditions{}, Derive(Fields{}))
	})
}

func TestDerive_MissingInputs(t *testing.T) {
	t.Run("humidity without temperature", func(t *testing.T) {
		c := Derive(Fields{"relhum_2m": 50})
		require.NotNil(t, c.Humidity)
		assert.Nil(t, c.Temperature)
		assert.Nil(t, c.DewPoint)
		assert.Nil(t, c.FeelsLike)
	})

	t.Run("temperature outside both ranges", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 150, "relhum_2m": 50, "u_10m": 1, "v_10m": 1})
		assert.Nil(t, c.Temperature)
		assert.Nil(t, c.DewPoint)
		assert.Nil(t, c.FeelsLike)
	})

	t.Run("one wind component", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 20, "relhum_2m": 50, "u_10m": 3})
		assert.Nil(t, c.WindSpeed)
		assert.Nil(t, c.WindDirection)
		assert.Nil(t, c.FeelsLike)
		require.NotNil(t, c.DewPoint)
		assert.InDelta(t, 10.0, *c.DewPoint, 1e-9)
	})

	t.Run("calm wind is present", func(t *testing.T) {
		c := Derive(Fields{"t_2m": 20, "relhum_2m": 50, "u_10m": 0, "v_10m": 0})
		require.NotNil(t, c.WindSpeed)
		assert.Equal(t, 0.0, *c.WindSpeed)
		require.NotNil(t, c.FeelsLike)
		assert.Equal(t, 20.0, *c.FeelsLike)
	})
}

func TestDeriveSeries_AccumulatedPrecipitation(t *testing.T) {
	base := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ValidTime: base, Fields: Fields{"t_2m": 15, "tot_prec": 0.5}},
		{ValidTime: base.Add(time.Hour), Fields: Fields{"t_2m": 15, "tot_prec": 7}},
		{ValidTime: base.Add(2 * time.Hour), Fields: Fields{"t_2m": 15, "tot_prec": 7}},
		{ValidTime: base.Add(3 * time.Hour), Fields: Fields{"t_2m": 15, "tot_prec": 6.9}},
	}

	samples := DeriveSeries(records)

	require.Len(t, samples, 4)
	assert.InDelta(t, 0.5, *samples[0].Precipitation, 1e-9)
	assert.InDelta(t, 6.5, *samples[1].Precipitation, 1e-9)
	assert.Equal(t, ConditionHeavyRain, samples[1].Condition)
	assert.Equal(t, 0.0, *samples[2].Precipitation)
	assert.Equal(t, ConditionClear, samples[2].Condition)
	assert.Equal(t, 0.0, *samples[3].Precipitation)
	assert.Equal(t, base.Add(time.Hour), samples[1].Time)
}

func TestDeriveSeries_PrecipitationGap(t *testing.T) {
	base := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ValidTime: base, Fields: Fields{"tot_prec": 1}},
		{ValidTime: base.Add(time.Hour), Fields: Fields{"t_2m": 15}},
		{ValidTime: base.Add(2 * time.Hour), Fields: Fields{"tot_prec": 3}},
	}

	samples := DeriveSeries(records)

	require.Len(t, samples, 3)
	assert.Nil(t, samples[1].Precipitation)
	assert.Equal(t, Condition{}, samples[1].Condition)
	assert.InDelta(t, 2.0, *samples[2].Precipitation, 1e-9)
}
