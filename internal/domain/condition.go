package domain

// Condition is a weather classification in OpenWeatherMap numbering.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var (
	ConditionSnow         = Condition{ID: 600, Main: "Snow", Description: "snow", Icon: "snow"}
	ConditionThunderstorm = Condition{ID: 211, Main: "Thunderstorm", Description: "thunderstorm", Icon: "thunderstorm"}
	ConditionHeavyRain    = Condition{ID: 502, Main: "Rain", Description: "heavy rain", Icon: "heavy_rain"}
	ConditionLightRain    = Condition{ID: 500, Main: "Rain", Description: "light rain", Icon: "rain"}
	ConditionOvercast     = Condition{ID: 804, Main: "Clouds", Description: "overcast clouds", Icon: "cloudy"}
	ConditionScattered    = Condition{ID: 802, Main: "Clouds", Description: "scattered clouds", Icon: "partly_cloudy"}
	ConditionClear        = Condition{ID: 800, Main: "Clear", Description: "clear sky", Icon: "clear"}
)

const (
	thunderstormCAPE = 1000.0 // J/kg
	heavyRainMM      = 5.0
	overcastPct      = 80.0
	scatteredPct     = 20.0
)

// Classify applies the fixed decision order to canonical quantities. It
// returns the zero Condition when neither precipitation nor cloud cover is
// known.
func Classify(c Conditions) Condition {
	if c.Precipitation != nil && *c.Precipitation > 0 {
		p := *c.Precipitation
		switch {
		case c.Temperature != nil && *c.Temperature < 0:
			return ConditionSnow
		case c.CAPE != nil && *c.CAPE > thunderstormCAPE:
			return ConditionThunderstorm
		case p > heavyRainMM:
			return ConditionHeavyRain
		default:
			return ConditionLightRain
		}
	}
	if c.CloudCover == nil {
		if c.Precipitation != nil {
			return ConditionClear
		}
		return Condition{}
	}
	switch cl := *c.CloudCover; {
	case cl > overcastPct:
		return ConditionOvercast
	case cl > scatteredPct:
		return ConditionScattered
	default:
		return ConditionClear
	}
}
