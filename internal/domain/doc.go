// Package domain models DWD ICON-EU forecast data for a single served region.
//
// # Data Source
//
// Forecasts come from the Deutscher Wetterdienst open data server at
// https://opendata.dwd.de/weather/nwp/icon-eu/grib/. Each model run publishes
// one bzip2-compressed GRIB2 file per (variable, forecast step) on a regular
// 0.0625° latitude/longitude mesh covering Europe.
//
// # Runs
//
// A run is identified by its issuance date and cycle hour and is written as
// YYYYMMDDHH, e.g. "2024042612" for the 12 UTC run of 26 April 2024. Runs are
// compared by (date, cycle). Queries never mix records from two runs; the
// newest run with at least one record for a cell wins. See [Run].
//
// # Field Bags
//
// Forecast records keep the raw upstream values in an open [Fields] map keyed
// by the published variable name. Different distribution channels name the
// same quantity differently:
//
//	temperature  t_2m, tmp_level_2_m, 2t_level_2
//	humidity     relhum_2m, rh_level_2_m, 2r_level_2
//	wind u / v   u_10m, ugrd_level_10_m, 10u_level_10 / v_10m, vgrd_level_10_m, 10v_level_10
//	cloud cover  clct, tcdc_level_entire, tcdc_level_0
//	pressure     pmsl, prmsl_level_0, pres_level_surface
//
// Resolution is first-present-wins in the order listed.
//
// # Unit Conventions
//
// Temperature:
//
//	Values in [200, 333] are Kelvin, values in [-80, 60] are Celsius. The two
//	ranges do not overlap, so the heuristic is unambiguous. Anything outside
//	both is treated as missing.
//
// Pressure:
//
//	Values above 2000 are Pascal and divided by 100. Smaller values are
//	already hectopascal.
//
// Precipitation:
//
//	The unit is bound to the field name, never guessed from the magnitude.
//	tot_prec is kg/m² (= mm) accumulated since the start of the run, so the
//	amount for a step is the difference from the previous step. prate_* fields
//	are kg/m²/s and are multiplied by 3600 to give mm over the hour.
//
// # Derived Quantities
//
//	Wind speed      sqrt(u² + v²)
//	Wind direction  atan2(u, v) in degrees, [0, 360), 0 when calm
//	Dew point       T - (100 - RH) / 5 when not published
//	Feels like      wind chill (T < 10 °C, wind > 1.3 m/s),
//	                heat index (T > 27 °C, RH > 40 %), else T
//
// Condition classification follows a fixed decision order:
//
//	precip > 0 and T < 0         snow (600)
//	precip > 0 and CAPE > 1000   thunderstorm (211)
//	precip > 5 mm                heavy rain (502)
//	precip > 0                   light rain (500)
//	cloud > 80 %                 overcast clouds (804)
//	cloud > 20 %                 scattered clouds (802)
//	otherwise                    clear sky (800)
//
// A quantity whose field is absent from a record, or whose value fits no
// known unit range, is left unset. Derived quantities are computed only when
// all of their inputs are present, and daily aggregates skip unset values.
//
// Condition ids follow the OpenWeatherMap numbering used by the web client.
package domain
