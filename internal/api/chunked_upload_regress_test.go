package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/metrics"
	"github.com/rtanaka/barchive/internal/storage/localfs"
)

// TestReproChunkedUploadIssue is the regression test for a bug where a
// chunked request's Content-Length (the wire size, chunk framing
// included) was mistaken for the decoded archive size. It now asserts
// against bytes actually landed on the backend rather than a stored
// metadata header, since the ingestion endpoint has no object-metadata
// store of its own.
func TestReproChunkedUploadIssue(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	base := t.TempDir()
	backend := localfs.New(base)

	handler := NewHandler(backend, &archive.EngineContext{}, logger, metrics.NewMetricsWithRegistry(prometheus.NewRegistry()), "")
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	chunk1 := "5;chunk-signature=sig1\r\nhello\r\n"
	chunk2 := "6;chunk-signature=sig2\r\n world\r\n"
	chunkEnd := "0;chunk-signature=final-signature\r\n"

	body := chunk1 + chunk2 + chunkEnd
	realDataSize := 11 // "hello world"
	chunkedSize := len(body)

	req := httptest.NewRequest("PUT", "/archives/job-one/daily.bar", bytes.NewReader([]byte(body)))
	req.Header.Set("x-archive-content-encoding", "chunked")

	// Content-Length reflects the chunked wire size; the decoded length
	// header carries the real payload size (regression: these were
	// conflated).
	req.Header.Set("Content-Length", strconv.Itoa(chunkedSize))
	req.Header.Set("x-archive-decoded-content-length", strconv.Itoa(realDataSize))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	stored, err := backend.Open(req.Context(), "job-one/daily.bar")
	assert.NoError(t, err)
	defer stored.Close()

	data := make([]byte, realDataSize)
	n, err := stored.Read(data)
	assert.NoError(t, err)
	assert.Equal(t, realDataSize, n)
	assert.Equal(t, "hello world", string(data))
}
