package test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rtanaka/barchive/internal/storage"
	"github.com/rtanaka/barchive/internal/storage/s3backend"
)

// ToxicServer is a wrapper around httptest.Server that can inject faults
// into an S3-compatible backend's responses, for exercising the AWS SDK
// v2 retryer storage/s3backend.Backend is built on rather than any
// retry logic of our own (the ops HTTP surface has none; retries belong
// entirely to the SDK client talking to the object store).
type ToxicServer struct {
	server *httptest.Server
	mu     sync.Mutex

	latency       time.Duration
	failCount     int // number of requests to fail before succeeding
	failCode      int // HTTP status code to return on failure
	requestCount  int // requests seen since the last SetBehavior
	totalRequests int32
	hangForever   bool
}

func NewToxicServer() *ToxicServer {
	ts := &ToxicServer{}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handleRequest))
	return ts
}

func (ts *ToxicServer) Close() { ts.server.Close() }
func (ts *ToxicServer) URL() string { return ts.server.URL }

func (ts *ToxicServer) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.latency = 0
	ts.failCount = 0
	ts.failCode = 0
	ts.requestCount = 0
	ts.hangForever = false
	atomic.StoreInt32(&ts.totalRequests, 0)
}

func (ts *ToxicServer) SetBehavior(latency time.Duration, failCount int, failCode int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.latency = latency
	ts.failCount = failCount
	ts.failCode = failCode
	ts.requestCount = 0
}

func (ts *ToxicServer) SetHang(hang bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.hangForever = hang
}

func (ts *ToxicServer) GetTotalRequests() int32 {
	return atomic.LoadInt32(&ts.totalRequests)
}

func (ts *ToxicServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&ts.totalRequests, 1)

	ts.mu.Lock()
	latency := ts.latency
	shouldFail := ts.requestCount < ts.failCount
	failCode := ts.failCode
	hang := ts.hangForever
	if shouldFail {
		ts.requestCount++
	}
	ts.mu.Unlock()

	if hang {
		time.Sleep(30 * time.Second)
		return
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	if shouldFail && failCode > 0 {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(failCode)
		code := "InternalError"
		if failCode == http.StatusServiceUnavailable || failCode == 429 {
			code = "SlowDown"
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>%s</Code><Message>injected chaos-test failure</Message><RequestId>test</RequestId></Error>`, code)
		return
	}

	w.Header().Set("x-amz-request-id", "test-request-id")
	switch r.Method {
	case "PUT":
		w.Header().Set("ETag", `"test-etag"`)
		w.WriteHeader(http.StatusOK)
	case "GET":
		w.Header().Set("ETag", `"test-etag"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test content"))
	case "HEAD":
		w.Header().Set("Content-Length", "12")
		w.WriteHeader(http.StatusOK)
	case "DELETE":
		w.WriteHeader(http.StatusNoContent)
	}
}

// newToxicBackend initializes an s3backend.Backend pointed at the given
// ToxicServer, the same client construction path
// storage.InitWithCredentials drives in production.
func newToxicBackend(t *testing.T, endpoint, bucket string) *s3backend.Backend {
	t.Helper()
	b := s3backend.New()
	spec := storage.Specifier{
		Scheme:   storage.Scheme("s3"),
		Host:     bucket,
		User:     "test-access",
		Password: "test-secret",
	}
	options := map[string]string{
		"provider": "generic",
		"region":   "us-east-1",
		"endpoint": endpoint,
	}
	if _, err := b.Init(context.Background(), spec, options); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b
}

func TestChaos_BackendThrottling(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	toxic := NewToxicServer()
	defer toxic.Close()
	backend := newToxicBackend(t, toxic.URL(), "chaos-bucket")

	// Transient throttling: fails twice with 429, succeeds on the third
	// attempt — within the AWS SDK v2 standard retryer's default 3-attempt
	// budget, so the write should still succeed.
	toxic.Reset()
	toxic.SetBehavior(0, 2, 429)

	t.Run("transient throttling", func(t *testing.T) {
		wh, err := backend.Create(context.Background(), "key1", 4)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := wh.Write([]byte("data")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := wh.Close(); err != nil {
			t.Fatalf("expected success after SDK retries, got: %v", err)
		}

		if total := toxic.GetTotalRequests(); total < 3 {
			t.Errorf("expected at least 3 requests to the backend (2 retries + success), got %d", total)
		}
	})

	// Persistent throttling: fails more times than the retryer's budget,
	// so the write should surface an error.
	toxic.Reset()
	toxic.SetBehavior(0, 10, 429)

	t.Run("persistent throttling", func(t *testing.T) {
		wh, err := backend.Create(context.Background(), "key2", 4)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		wh.Write([]byte("data"))
		if err := wh.Close(); err == nil {
			t.Error("expected failure for persistent throttling, got nil error")
		}
	})
}

func TestChaos_Backend500(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	toxic := NewToxicServer()
	defer toxic.Close()
	backend := newToxicBackend(t, toxic.URL(), "chaos-bucket")

	toxic.Reset()
	toxic.SetBehavior(0, 2, 500)

	t.Run("transient 500", func(t *testing.T) {
		rh, err := backend.Open(context.Background(), "key1")
		if err != nil {
			t.Fatalf("expected success after SDK retries, got: %v", err)
		}
		defer rh.Close()
		if _, err := io.ReadAll(rh); err != nil {
			t.Fatalf("read: %v", err)
		}
		if total := toxic.GetTotalRequests(); total < 3 {
			t.Errorf("expected retries, got %d requests", total)
		}
	})

	toxic.Reset()
	toxic.SetBehavior(0, 10, 500)

	t.Run("persistent 500", func(t *testing.T) {
		if _, err := backend.Open(context.Background(), "key2"); err == nil {
			t.Error("expected failure for persistent 500s, got nil error")
		}
	})
}

func TestChaos_NetworkTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping chaos test in short mode")
	}

	toxic := NewToxicServer()
	defer toxic.Close()
	backend := newToxicBackend(t, toxic.URL(), "chaos-bucket")

	toxic.Reset()
	toxic.SetHang(true)

	t.Run("backend hangs", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		start := time.Now()
		_, err := backend.Open(ctx, "key-hang")
		duration := time.Since(start)

		if err == nil {
			t.Error("expected failure when the backend hangs, got nil error")
		} else {
			t.Logf("request failed as expected after %v: %v", duration, err)
		}
		if duration > 10*time.Second {
			t.Errorf("took %v to fail, context deadline should have cut this off near 2s", duration)
		}
	})
}
