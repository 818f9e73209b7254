package netatmo

import (
	"context"
	"net/http"
)

// Weather station module types
const (
	ModuleTypeStation = "NAMain"
	ModuleTypeOutdoor = "NAModule1"
	ModuleTypeWind    = "NAModule2"
	ModuleTypeRain    = "NAModule3"
	ModuleTypeIndoor  = "NAModule4"
)

// DashboardData holds the current readings of a station or module.
// Readings are pointers because each module type reports a different
// subset; absent means the sensor does not exist or has no data.
type DashboardData struct {
	TimeUTC      int64    `json:"time_utc"`
	Temperature  *float64 `json:"Temperature,omitempty"`
	Humidity     *int     `json:"Humidity,omitempty"`
	CO2          *int     `json:"CO2,omitempty"`
	Pressure     *float64 `json:"Pressure,omitempty"`
	Noise        *int     `json:"Noise,omitempty"`
	RainSum1h    *float64 `json:"sum_rain_1,omitempty"`
	RainSum24h   *float64 `json:"sum_rain_24,omitempty"`
	WindStrength *float64 `json:"WindStrength,omitempty"`
	GustStrength *float64 `json:"GustStrength,omitempty"`
	WindAngle    *int     `json:"WindAngle,omitempty"`
	GustAngle    *int     `json:"GustAngle,omitempty"`
}

// Module is an outdoor/wind/rain/indoor module attached to a station
type Module struct {
	ID             string        `json:"_id"`
	Type           string        `json:"type"`
	ModuleName     string        `json:"module_name"`
	Reachable      bool          `json:"reachable"`
	BatteryPercent int           `json:"battery_percent"`
	DashboardData  DashboardData `json:"dashboard_data"`
}

// Station is a weather station base unit with its attached modules
type Station struct {
	ID            string        `json:"_id"`
	StationName   string        `json:"station_name"`
	ModuleName    string        `json:"module_name"`
	Type          string        `json:"type"`
	Reachable     bool          `json:"reachable"`
	DashboardData DashboardData `json:"dashboard_data"`
	Modules       []Module      `json:"modules"`
}

// ModuleOfType returns the first attached module of the given type, or nil
func (s *Station) ModuleOfType(moduleType string) *Module {
	for i := range s.Modules {
		if s.Modules[i].Type == moduleType {
			return &s.Modules[i]
		}
	}
	return nil
}

// StationsData fetches the account's weather stations with the current
// readings of every attached module
func (c *Client) StationsData(ctx context.Context) ([]Station, error) {
	var body struct {
		Devices []Station `json:"devices"`
	}

	req := Request{Method: http.MethodGet, Path: "/api/getstationsdata"}
	if err := c.Do(ctx, req, &body); err != nil {
		return nil, err
	}

	return body.Devices, nil
}
