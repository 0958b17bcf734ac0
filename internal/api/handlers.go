package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rtanaka/barchive/internal/archive"
	"github.com/rtanaka/barchive/internal/listing"
	"github.com/rtanaka/barchive/internal/metrics"
	"github.com/rtanaka/barchive/internal/middleware"
	"github.com/rtanaka/barchive/internal/storage"
)

// Handler serves the ops/diagnostics HTTP surface: health/ready/live probes,
// a JSON archive-listing endpoint over internal/listing, and a
// chunked-transfer-encoding archive ingestion endpoint, the generalization
// of the teacher's S3-object REST surface to the archive domain.
type Handler struct {
	backend     storage.Backend
	engine      *archive.EngineContext
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	adminSecret string
}

// NewHandler creates a new API handler. adminSecret is the shared key
// ValidateSignatureV4 checks mutating requests against; an empty
// adminSecret disables signature checking (local/dev use only).
func NewHandler(backend storage.Backend, engine *archive.EngineContext, logger *logrus.Logger, m *metrics.Metrics, adminSecret string) *Handler {
	return &Handler{
		backend:     backend,
		engine:      engine,
		logger:      logger,
		metrics:     m,
		adminSecret: adminSecret,
	}
}

// RegisterRoutes registers all API routes, wrapped with the recovery and
// request-logging middleware every request on this surface goes through.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.RecoveryMiddleware(h.logger))
	r.Use(middleware.LoggingMiddleware(h.logger))

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/ready", h.handleReady).Methods("GET")
	r.HandleFunc("/live", h.handleLive).Methods("GET")

	archives := r.PathPrefix("/archives").Subrouter()
	archives.HandleFunc("/{name:.*}/entries", h.handleListEntries).Methods("GET")
	archives.HandleFunc("/{name:.*}", h.handleHeadArchive).Methods("HEAD")
	archives.HandleFunc("/{name:.*}", h.handleIngestArchive).Methods("PUT")
	archives.HandleFunc("/{name:.*}", h.handleDeleteArchive).Methods("DELETE")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.HealthHandler()(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/health", http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	check := func(ctx context.Context) error {
		_, err := h.backend.Exists(ctx, "")
		return err
	}
	metrics.ReadinessHandler(check)(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/ready", http.StatusOK, time.Since(start), 0)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.LivenessHandler()(w, r)
	h.metrics.RecordHTTPRequest(r.Context(), "GET", "/live", http.StatusOK, time.Since(start), 0)
}

// authenticate validates an admin request's signature when adminSecret is
// set; it reuses auth.go's AWS-SigV4-style HMAC signing scheme verbatim,
// only the audience (an admin/ops endpoint, not an S3 object) differs.
func (h *Handler) authenticate(r *http.Request) error {
	if h.adminSecret == "" {
		return nil
	}
	return ValidateSignatureV4(r, h.adminSecret)
}

// listingRow is the JSON shape of a listing.Row; Kind/Compress/Crypt are
// rendered as their string forms rather than the underlying numeric/raw
// types.
type listingRow struct {
	Number      int    `json:"number"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	ModTime     string `json:"modTime"`
	UID         uint32 `json:"uid"`
	GID         uint32 `json:"gid"`
	Permissions uint32 `json:"permissions"`
	OffsetFrom  uint64 `json:"offsetFrom"`
	OffsetTo    uint64 `json:"offsetTo"`
	Compress    string `json:"compress,omitempty"`
	Crypt       string `json:"crypt,omitempty"`
	StorageName string `json:"storageName,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

func toListingRows(rows []listing.Row) []listingRow {
	out := make([]listingRow, 0, len(rows))
	for _, row := range rows {
		lr := listingRow{
			Number:      row.Number,
			Kind:        row.Kind.String(),
			Name:        row.Name,
			Size:        row.Size,
			ModTime:     row.ModTime.UTC().Format(time.RFC3339),
			UID:         row.UID,
			GID:         row.GID,
			Permissions: row.Permissions,
			OffsetFrom:  row.OffsetFrom,
			OffsetTo:    row.OffsetTo,
			Compress:    string(row.Compress),
			Crypt:       string(row.Crypt),
			StorageName: row.StorageName,
		}
		if row.Warning != nil {
			lr.Warning = row.Warning.Error()
		}
		out = append(out, lr)
	}
	return out
}

// handleListEntries opens the named archive and walks its entries,
// applying the ?include=, ?exclude=, ?group= and ?long= query parameters
// the way internal/listing.Options expects (spec §4.G).
func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	rh, err := h.backend.Open(ctx, name)
	if err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("failed to open archive for listing")
		http.Error(w, "failed to open archive", http.StatusNotFound)
		h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, http.StatusNotFound, time.Since(start), 0)
		return
	}
	defer rh.Close()

	ar, err := h.engine.OpenArchive(ctx, rh)
	if err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("failed to decode archive")
		http.Error(w, "failed to decode archive", http.StatusUnprocessableEntity)
		h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, http.StatusUnprocessableEntity, time.Since(start), 0)
		return
	}

	q := r.URL.Query()
	opts := listing.Options{
		GroupByStorage: q.Get("group") == "true",
		ShowEntries:    q.Get("all") == "true",
		LongFormat:     q.Get("long") == "true",
	}
	if inc := q.Get("include"); inc != "" {
		opts.IncludeList = strings.Split(inc, ",")
	}
	if exc := q.Get("exclude"); exc != "" {
		opts.ExcludeList = strings.Split(exc, ",")
	}

	rows, err := listing.CollectArchive(ctx, ar, name, opts)
	if err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("failed to list archive entries")
		http.Error(w, "failed to list archive entries", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, http.StatusInternalServerError, time.Since(start), 0)
		return
	}
	if opts.GroupByStorage {
		rows = listing.Coalesce(rows)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body, _ := json.Marshal(toListingRows(rows))
	n, _ := w.Write(body)

	h.metrics.RecordHTTPRequest(ctx, "GET", r.URL.Path, http.StatusOK, time.Since(start), int64(n))
}

// handleHeadArchive reports whether an archive object exists and its size,
// without transferring its body.
func (h *Handler) handleHeadArchive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	ok, err := h.backend.Exists(ctx, name)
	if err != nil {
		http.Error(w, "failed to stat archive", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "HEAD", r.URL.Path, http.StatusInternalServerError, time.Since(start), 0)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		h.metrics.RecordHTTPRequest(ctx, "HEAD", r.URL.Path, http.StatusNotFound, time.Since(start), 0)
		return
	}

	rh, err := h.backend.Open(ctx, name)
	if err == nil {
		if size, err := rh.Size(); err == nil {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		rh.Close()
	}

	w.WriteHeader(http.StatusOK)
	h.metrics.RecordHTTPRequest(ctx, "HEAD", r.URL.Path, http.StatusOK, time.Since(start), 0)
}

// handleIngestArchive stores an already-built archive container shipped by
// an agent. The body is decoded through ChunkedTransferReader when the
// request declares chunked archive content (spec §9's generalization of
// the teacher's streaming S3 PUT bodies to archive write streams);
// otherwise it is read straight off r.Body.
func (h *Handler) handleIngestArchive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	if err := h.authenticate(r); err != nil {
		h.logger.WithError(err).WithField("archive", name).Warn("rejected unauthenticated ingest")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusUnauthorized, time.Since(start), 0)
		return
	}

	var body io.Reader = r.Body
	var expectedSize int64
	if r.Header.Get("x-archive-content-encoding") == "chunked" {
		body = NewChunkedTransferReader(r.Body)
		if decoded := r.Header.Get("x-archive-decoded-content-length"); decoded != "" {
			expectedSize, _ = strconv.ParseInt(decoded, 10, 64)
		}
	} else if cl := r.Header.Get("Content-Length"); cl != "" {
		expectedSize, _ = strconv.ParseInt(cl, 10, 64)
	}

	if err := h.backend.PreProcess(ctx, name, time.Now(), true); err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("pre-process hook failed")
		http.Error(w, "pre-process hook failed", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusInternalServerError, time.Since(start), 0)
		return
	}

	wh, err := h.backend.Create(ctx, name, expectedSize)
	if err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("failed to open archive for writing")
		http.Error(w, "failed to create archive", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusInternalServerError, time.Since(start), 0)
		return
	}

	n, err := io.Copy(wh, body)
	closeErr := wh.Close()
	if err != nil || closeErr != nil {
		if err == nil {
			err = closeErr
		}
		h.logger.WithError(err).WithField("archive", name).Error("failed to write archive")
		http.Error(w, "failed to write archive", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusInternalServerError, time.Since(start), n)
		return
	}

	if err := h.backend.PostProcess(ctx, name, time.Now(), true); err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("post-process hook failed")
		http.Error(w, "post-process hook failed", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusInternalServerError, time.Since(start), n)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.metrics.RecordHTTPRequest(ctx, "PUT", r.URL.Path, http.StatusCreated, time.Since(start), n)
}

// handleDeleteArchive removes an archive object from the backend.
func (h *Handler) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	if err := h.authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		h.metrics.RecordHTTPRequest(ctx, "DELETE", r.URL.Path, http.StatusUnauthorized, time.Since(start), 0)
		return
	}

	if err := h.backend.Delete(ctx, name); err != nil {
		h.logger.WithError(err).WithField("archive", name).Error("failed to delete archive")
		http.Error(w, "failed to delete archive", http.StatusInternalServerError)
		h.metrics.RecordHTTPRequest(ctx, "DELETE", r.URL.Path, http.StatusInternalServerError, time.Since(start), 0)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.metrics.RecordHTTPRequest(ctx, "DELETE", r.URL.Path, http.StatusNoContent, time.Since(start), 0)
}
