package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/amqpwire/internal/protocol/schema"
	"github.com/danmuck/amqpwire/internal/tap"
	"github.com/danmuck/amqpwire/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeConns struct {
	infos []tap.ConnInfo
}

func (f fakeConns) Stats() []tap.ConnInfo { return f.infos }
func (f fakeConns) Accepted() uint64      { return 7 }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	spec, err := schema.Default()
	require.NoError(t, err)
	conns := fakeConns{infos: []tap.ConnInfo{{
		ID:             "c1",
		Client:         "127.0.0.1:5000",
		Upstream:       "127.0.0.1:5672",
		Opened:         time.Unix(100, 0).UTC(),
		ClientToServer: tap.Traffic{Bytes: 20, Frames: 1},
		ServerToClient: tap.Traffic{Bytes: 40, Frames: 2},
	}}}
	return New(":0", []string{"http://example.test"}, conns, spec)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://example.test")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	rr := get(t, newTestServer(t), "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "http://example.test", rr.Header().Get("Access-Control-Allow-Origin"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestConnections(t *testing.T) {
	testlog.Start(t)
	rr := get(t, newTestServer(t), "/connections")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Accepted    uint64         `json:"accepted"`
		Active      int            `json:"active"`
		Connections []tap.ConnInfo `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, uint64(7), body.Accepted)
	require.Equal(t, 1, body.Active)
	require.Equal(t, "c1", body.Connections[0].ID)
	require.Equal(t, uint64(2), body.Connections[0].ServerToClient.Frames)
}

func TestSchema(t *testing.T) {
	testlog.Start(t)
	rr := get(t, newTestServer(t), "/schema")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Version    string                 `json:"version"`
		FrameTypes []schema.FrameTypeSpec `json:"frame_types"`
		Classes    []schema.ClassSpec     `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.FrameTypes, 4)
	require.NotEmpty(t, body.Classes)
	require.Equal(t, "connection", body.Classes[0].Name)
}

func TestTokenGuardsDataRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New(":0", []string{"http://example.test"}, fakeConns{}, nil, WithToken("secret"))

	require.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	require.Equal(t, http.StatusUnauthorized, get(t, s, "/connections").Code)

	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/schema", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsExposeHTTPCounters(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t)
	get(t, s, "/health")
	rr := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "amqpwire_http_requests_total"))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New(":0", nil, fakeConns{}, nil)
	require.Equal(t, http.StatusForbidden, get(t, s, "/health").Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
