package netatmo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/netatmo-cli/internal/pkg/netauth"
)

// stubTokens is a TokenSource that serves canned tokens, advancing to the
// next one on Invalidate
type stubTokens struct {
	mu          sync.Mutex
	tokens      []string
	idx         int
	invalidates int
	discards    int
}

func (s *stubTokens) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[s.idx], nil
}

func (s *stubTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidates++
	if s.idx < len(s.tokens)-1 {
		s.idx++
	}
}

func (s *stubTokens) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discards++
}

const emptyStations = `{"body":{"devices":[]},"status":"ok"}`

func TestDoRetriesOnceOnUnauthorized(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-stale", "tok-fresh"}}

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		if r.Header.Get("Authorization") != "Bearer tok-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":3,"message":"Access token expired"}}`)
			return
		}
		fmt.Fprint(w, emptyStations)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	var body struct {
		Devices []Station `json:"devices"`
	}
	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, &body)

	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
	assert.Equal(t, 1, tokens.invalidates)
}

func TestDoSecondUnauthorizedIsFatal(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-revoked"}}

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":2,"message":"Invalid access token"}}`)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, nil)
	require.Error(t, err)

	var authErr *netauth.AuthError
	assert.True(t, errors.As(err, &authErr))

	// exactly one retry, never a third attempt; the token state is
	// thrown away before giving up
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
	assert.Equal(t, 1, tokens.discards)
}

// A request that stays unauthorized after a forced refresh must leave no
// tokens behind; the next invocation starts from a fresh login
func TestFatalAuthFailureClearsTokenFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "tokens.json")
	state := `{"access-token":"tok-1","access-token-expiry":"2100-01-01T00:00:00Z","refresh-token":"rt-1"}`
	require.NoError(t, os.WriteFile(fileName, []byte(state), 0600))

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		writeAuthToken(w, "tok-2", "rt-2")
	}))
	defer authServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":2,"message":"Invalid access token"}}`)
	}))
	defer apiServer.Close()

	creds := netauth.Credentials{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p"}
	session := netauth.NewSession(creds).WithTokenURL(authServer.URL).WithTokenFile(fileName)
	client := NewClient(session).WithBaseURL(apiServer.URL)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, nil)
	require.Error(t, err)

	var authErr *netauth.AuthError
	require.True(t, errors.As(err, &authErr))

	data, err := os.ReadFile(fileName)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tok-1")
	assert.NotContains(t, string(data), "tok-2")
	assert.NotContains(t, string(data), "rt-1")
	assert.NotContains(t, string(data), "rt-2")
}

func TestDoServerErrorNotRetried(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-1"}}

	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"Internal error"}}`)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, KindHTTP, reqErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)

	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
	assert.Equal(t, 0, tokens.invalidates)
}

func TestDoDecodeErrorIsRequestError(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-1"}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not JSON`)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, KindDecode, reqErr.Kind)
}

func TestDoTimeoutIsRequestError(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-1"}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, emptyStations)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL).WithTimeout(50 * time.Millisecond)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/getstationsdata"}, nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, KindTimeout, reqErr.Kind)
}

func TestDoEnvelopeErrorIsRequestError(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-1"}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":21,"message":"Invalid argument"}}`)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/homestatus"}, nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Contains(t, reqErr.Error(), "Invalid argument")
}

func writeAuthToken(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"refresh_token":%q,"expires_in":3600,"token_type":"bearer"}`,
		access, refresh)
}

// Cold start: no token cached, so listing stations performs one login and
// one GET
func TestStationsDataColdStart(t *testing.T) {
	var authCalls int32
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		writeAuthToken(w, "tok-1", "refresh-1")
	}))
	defer authServer.Close()

	var apiCalls int32
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/getstationsdata", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"body": {
				"devices": [{
					"_id": "70:ee:50:00:00:01",
					"station_name": "Home",
					"type": "NAMain",
					"dashboard_data": {"Temperature": 21.5, "Humidity": 48, "CO2": 620},
					"modules": [{
						"_id": "02:00:00:00:00:01",
						"type": "NAModule1",
						"module_name": "Garden",
						"dashboard_data": {"Temperature": 14.2, "Humidity": 71}
					}]
				}]
			},
			"status": "ok"
		}`)
	}))
	defer apiServer.Close()

	creds := netauth.Credentials{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p"}
	session := netauth.NewSession(creds).WithTokenURL(authServer.URL)
	client := NewClient(session).WithBaseURL(apiServer.URL)

	stations, err := client.StationsData(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&authCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&apiCalls))

	require.Len(t, stations, 1)
	assert.Equal(t, "Home", stations[0].StationName)
	require.NotNil(t, stations[0].DashboardData.Temperature)
	assert.Equal(t, 21.5, *stations[0].DashboardData.Temperature)

	outdoor := stations[0].ModuleOfType(ModuleTypeOutdoor)
	require.NotNil(t, outdoor)
	assert.Equal(t, "Garden", outdoor.ModuleName)
	assert.Equal(t, 14.2, *outdoor.DashboardData.Temperature)
}

// Stale cached token: a control command refreshes using the refresh token
// (no password on the wire) and issues one POST
func TestSetThermModeWithStaleToken(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "tokens.json")
	state := `{"access-token":"tok-stale","access-token-expiry":"2020-01-01T00:00:00Z","refresh-token":"rt-1"}`
	require.NoError(t, os.WriteFile(fileName, []byte(state), 0600))

	var authCalls int32
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&authCalls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Empty(t, r.Form.Get("password"))
		writeAuthToken(w, "tok-2", "rt-2")
	}))
	defer authServer.Close()

	var apiCalls int32
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/setthermmode", r.URL.Path)
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "home-1", r.Form.Get("home_id"))
		assert.Equal(t, "away", r.Form.Get("mode"))

		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer apiServer.Close()

	creds := netauth.Credentials{ClientID: "id", ClientSecret: "secret", Username: "u", Password: "p"}
	session := netauth.NewSession(creds).WithTokenURL(authServer.URL).WithTokenFile(fileName)
	client := NewClient(session).WithBaseURL(apiServer.URL)

	err := client.SetThermMode(context.Background(), "home-1", "away")
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&authCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&apiCalls))
}

func TestSetThermModeRejectsBadMode(t *testing.T) {
	client := NewClient(&stubTokens{tokens: []string{"tok"}})

	err := client.SetThermMode(context.Background(), "home-1", "vacation")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid thermostat mode")
}

func TestHomeStatusQueryAndDecode(t *testing.T) {
	tokens := &stubTokens{tokens: []string{"tok-1"}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "home-1", r.URL.Query().Get("home_id"))
		fmt.Fprint(w, `{
			"body": {
				"home": {
					"id": "home-1",
					"rooms": [{"id": "room-1", "therm_measured_temperature": 19.5, "therm_setpoint_temperature": 21, "therm_setpoint_mode": "schedule"}],
					"modules": [{"id": "mod-1", "type": "NATherm1", "battery_level": 4100}]
				}
			},
			"status": "ok"
		}`)
	}))
	defer server.Close()

	client := NewClient(tokens).WithBaseURL(server.URL)

	status, err := client.HomeStatus(context.Background(), "home-1")
	require.NoError(t, err)

	assert.Equal(t, "home-1", status.ID)
	require.Len(t, status.Rooms, 1)
	assert.Equal(t, 19.5, *status.Rooms[0].ThermMeasuredTemperature)
	assert.Equal(t, "schedule", status.Rooms[0].ThermSetpointMode)
	require.Len(t, status.Modules, 1)
	assert.Equal(t, 4100, status.Modules[0].BatteryLevel)
}
