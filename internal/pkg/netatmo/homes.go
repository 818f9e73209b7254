package netatmo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Thermostat modes accepted by SetThermMode
const (
	ThermModeSchedule   = "schedule"
	ThermModeAway       = "away"
	ThermModeFrostguard = "hg"
)

// Home is an Energy API home with its rooms and modules
type Home struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Rooms   []Room       `json:"rooms"`
	Modules []HomeModule `json:"modules"`
}

type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type HomeModule struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	RoomID string `json:"room_id"`
}

// HomeStatus is the live state of a home's rooms and modules
type HomeStatus struct {
	ID      string         `json:"id"`
	Rooms   []RoomStatus   `json:"rooms"`
	Modules []ModuleStatus `json:"modules"`
}

type RoomStatus struct {
	ID                       string   `json:"id"`
	Reachable                *bool    `json:"reachable,omitempty"`
	ThermMeasuredTemperature *float64 `json:"therm_measured_temperature,omitempty"`
	ThermSetpointTemperature *float64 `json:"therm_setpoint_temperature,omitempty"`
	ThermSetpointMode        string   `json:"therm_setpoint_mode,omitempty"`
}

type ModuleStatus struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Reachable    *bool  `json:"reachable,omitempty"`
	BatteryLevel int    `json:"battery_level,omitempty"`
	RFStrength   int    `json:"rf_strength,omitempty"`
}

// HomesData fetches the account's homes with their device inventory
func (c *Client) HomesData(ctx context.Context) ([]Home, error) {
	var body struct {
		Homes []Home `json:"homes"`
	}

	req := Request{Method: http.MethodGet, Path: "/api/homesdata"}
	if err := c.Do(ctx, req, &body); err != nil {
		return nil, err
	}

	return body.Homes, nil
}

// HomeStatus fetches the live state of one home
func (c *Client) HomeStatus(ctx context.Context, homeID string) (*HomeStatus, error) {
	var body struct {
		Home HomeStatus `json:"home"`
	}

	req := Request{
		Method: http.MethodGet,
		Path:   "/api/homestatus",
		Params: url.Values{"home_id": {homeID}},
	}
	if err := c.Do(ctx, req, &body); err != nil {
		return nil, err
	}

	return &body.Home, nil
}

// SetThermMode switches the heating mode of a whole home.  This is a
// control command and is not safe to retry blindly.
func (c *Client) SetThermMode(ctx context.Context, homeID, mode string) error {
	switch mode {
	case ThermModeSchedule, ThermModeAway, ThermModeFrostguard:
	default:
		return errors.Errorf("invalid thermostat mode %q", mode)
	}

	req := Request{
		Method: http.MethodPost,
		Path:   "/api/setthermmode",
		Params: url.Values{
			"home_id": {homeID},
			"mode":    {mode},
		},
	}
	return c.Do(ctx, req, nil)
}

// SetRoomThermpoint sets a manual setpoint temperature for one room
func (c *Client) SetRoomThermpoint(ctx context.Context, homeID, roomID string, temp float64) error {
	req := Request{
		Method: http.MethodPost,
		Path:   "/api/setroomthermpoint",
		Params: url.Values{
			"home_id": {homeID},
			"room_id": {roomID},
			"mode":    {"manual"},
			"temp":    {strconv.FormatFloat(temp, 'f', 1, 64)},
		},
	}
	return c.Do(ctx, req, nil)
}
