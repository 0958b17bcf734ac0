package test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/rtanaka/barchive/internal/api"
	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/metrics"
	"github.com/rtanaka/barchive/internal/storage"
)

// TestGateway wraps an httptest.Server fronting an api.Handler, the
// replacement for the teacher's gateway test harness: the teacher drove
// its harness from a *config.Config describing one S3 backend; this one
// is handed an already-initialized storage.Backend directly, since the
// ops HTTP surface now fronts the archive engine's transport-agnostic
// storage.Backend rather than a single S3 client.
type TestGateway struct {
	server *httptest.Server
	Addr   string
	URL    string
}

// StartGateway starts the ops HTTP surface in-process against backend,
// with an optional admin signing secret (empty disables signature
// checking). The server is torn down via t.Cleanup.
func StartGateway(t *testing.T, backend storage.Backend, adminSecret string) *TestGateway {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	engine := &archive.EngineContext{Metrics: m}

	handler := api.NewHandler(backend, engine, logger, m, adminSecret)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestGateway{
		server: server,
		Addr:   strings.TrimPrefix(server.URL, "http://"),
		URL:    server.URL,
	}
}

// GetHTTPClient returns the client the httptest.Server is configured for.
func (g *TestGateway) GetHTTPClient() *http.Client {
	return g.server.Client()
}

// Close stops the gateway. Safe to call in addition to the automatic
// t.Cleanup teardown.
func (g *TestGateway) Close() {
	g.server.Close()
}
