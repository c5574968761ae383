package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/z21lan/internal/protocol"
	"github.com/danmuck/z21lan/internal/protocol/bcflag"
	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/station"
	"github.com/danmuck/z21lan/internal/testutil/testlog"
)

type fakeStation struct {
	mu       sync.Mutex
	power    protocol.PowerState
	sessions []session.Session
}

func (f *fakeStation) Sessions() []session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeStation) Power() protocol.PowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.power
}

func (f *fakeStation) SetPower(state protocol.PowerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.power = state
}

func newServer(t *testing.T, maxWatchers int) (*Server, *fakeStation) {
	t.Helper()
	st := &fakeStation{
		power: protocol.PowerOff,
		sessions: []session.Session{
			{Client: 1, Mask: bcflag.PowerLocoTurnout | bcflag.SystemInfo, Liveness: 20},
		},
	}
	return New(Config{Version: "test", MaxWatchers: maxWatchers}, st, nil), st
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t, 0)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)

	rec = do(t, s, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessions":1`)
}

func TestSessionsListing(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t, 0)
	rec := do(t, s, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []sessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	got := body.Sessions[0]
	assert.Equal(t, uint16(1), got.Client)
	assert.Equal(t, uint32(bcflag.WirePowerLocoTurnout|bcflag.WireSystemInfo), got.Flags)
	assert.Len(t, got.Classes, 2)
	assert.Equal(t, uint8(20), got.Liveness)
}

func TestPowerEndpoints(t *testing.T) {
	testlog.Start(t)
	s, st := newServer(t, 0)

	rec := do(t, s, http.MethodPost, "/power", `{"state":"on"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, protocol.PowerOn, st.Power())

	rec = do(t, s, http.MethodGet, "/power", "")
	assert.Contains(t, rec.Body.String(), `"power":"on"`)

	rec = do(t, s, http.MethodPost, "/power", `{"state":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPost, "/power", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, protocol.PowerOn, st.Power())
}

func TestPowerWriteRequiresToken(t *testing.T) {
	testlog.Start(t)
	st := &fakeStation{power: protocol.PowerOff}
	s := New(Config{Token: "s3cret"}, st, nil)

	rec := do(t, s, http.MethodPost, "/power", `{"state":"on"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, protocol.PowerOff, st.Power())

	req := httptest.NewRequest(http.MethodPost, "/power", strings.NewReader(`{"state":"on"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, protocol.PowerOn, st.Power())

	// reads stay open
	rec = do(t, s, http.MethodGet, "/power", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t, 0)
	do(t, s, http.MethodGet, "/health", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "z21_http_requests_total")
}

func dialMonitor(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMonitorStreamsFrames(t *testing.T) {
	testlog.Start(t)
	s, _ := newServer(t, 1)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialMonitor(t, srv)
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.hub.ObserveFrame(station.Outbound, 3, []byte{0x07, 0x00, 0x40, 0x00, 0x61, 0x01, 0x60})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev FrameEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, station.Outbound, ev.Dir)
	assert.Equal(t, uint16(3), ev.Client)
	assert.Equal(t, uint16(0x40), ev.Opcode)
	assert.Equal(t, "07004000610160", ev.Bytes)

	// second watcher exceeds the cap and is closed
	extra := dialMonitor(t, srv)
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = extra.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 1, s.hub.Count())

	conn.Close()
	require.Eventually(t, func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestParsePower(t *testing.T) {
	testlog.Start(t)
	cases := map[string]protocol.PowerState{
		"on":             protocol.PowerOn,
		" OFF ":          protocol.PowerOff,
		"stop":           protocol.PowerEmergencyStop,
		"emergency_stop": protocol.PowerEmergencyStop,
	}
	for raw, want := range cases {
		got, ok := parsePower(raw)
		if !ok || got != want {
			t.Fatalf("parsePower(%q) = %v,%v", raw, got, ok)
		}
	}
	if _, ok := parsePower(""); ok {
		t.Fatalf("empty state must be rejected")
	}
}
