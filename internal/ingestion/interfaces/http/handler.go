package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"medasset-cloud/internal/ingestion/application"
	ingestion "medasset-cloud/internal/ingestion/domain"
	"medasset-cloud/internal/observability/metrics"
)

// Ingestor is the application surface the HTTP layer needs.
type Ingestor interface {
	IngestTelemetry(ctx context.Context, ev ingestion.TelemetryEvent) error
	IngestTelemetryBatch(ctx context.Context, evs []ingestion.TelemetryEvent) (application.BatchResult, error)
	IngestRTLS(ctx context.Context, ev ingestion.RTLSEvent) error
	IngestRTLSBatch(ctx context.Context, evs []ingestion.RTLSEvent) (application.BatchResult, error)
	IngestMaintenance(ctx context.Context, ev ingestion.MaintenanceEvent) error
	IngestMaintenanceBatch(ctx context.Context, evs []ingestion.MaintenanceEvent) (application.BatchResult, error)
	IngestError(ctx context.Context, ev ingestion.ErrorEvent) error
	IngestErrorBatch(ctx context.Context, evs []ingestion.ErrorEvent) (application.BatchResult, error)
}

// Handler provides the device-event ingest APIs.
type Handler struct {
	ingestor Ingestor
	logger   *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(ingestor Ingestor, logger *log.Logger) (*Handler, error) {
	if ingestor == nil {
		return nil, errors.New("ingest handler: nil ingestor")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{ingestor: ingestor, logger: logger}, nil
}

// ServeHTTP routes ingest endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/ingest/telemetry":
		h.handleTelemetry(w, r)
	case "/ingest/telemetry/batch":
		h.handleTelemetryBatch(w, r)
	case "/ingest/rtls":
		h.handleRTLS(w, r)
	case "/ingest/rtls/batch":
		h.handleRTLSBatch(w, r)
	case "/ingest/maintenance":
		h.handleMaintenance(w, r)
	case "/ingest/maintenance/batch":
		h.handleMaintenanceBatch(w, r)
	case "/ingest/error":
		h.handleError(w, r)
	case "/ingest/error/batch":
		h.handleErrorBatch(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type ingestResponse struct {
	Success   bool                   `json:"success"`
	Processed int                    `json:"processed"`
	Failed    int                    `json:"failed"`
	Message   string                 `json:"message,omitempty"`
	Errors    []ingestion.FieldError `json:"errors,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
}

func (h *Handler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ev ingestion.TelemetryEvent
	body, ok := h.decode(w, r, string(ingestion.StreamTelemetry), start, &ev)
	if !ok {
		return
	}
	if len(ev.RawPayload) == 0 {
		ev.RawPayload = body
	}
	err := h.ingestor.IngestTelemetry(r.Context(), ev)
	h.writeSingleResult(w, string(ingestion.StreamTelemetry), start, err)
}

func (h *Handler) handleTelemetryBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	evs, ok := decodeBatch[ingestion.TelemetryEvent](h, w, r, string(ingestion.StreamTelemetry), start)
	if !ok {
		return
	}
	result, err := h.ingestor.IngestTelemetryBatch(r.Context(), evs)
	h.writeBatchResult(w, string(ingestion.StreamTelemetry), start, result, err)
}

func (h *Handler) handleRTLS(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ev ingestion.RTLSEvent
	body, ok := h.decode(w, r, string(ingestion.StreamRTLS), start, &ev)
	if !ok {
		return
	}
	if len(ev.RawPayload) == 0 {
		ev.RawPayload = body
	}
	err := h.ingestor.IngestRTLS(r.Context(), ev)
	h.writeSingleResult(w, string(ingestion.StreamRTLS), start, err)
}

func (h *Handler) handleRTLSBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	evs, ok := decodeBatch[ingestion.RTLSEvent](h, w, r, string(ingestion.StreamRTLS), start)
	if !ok {
		return
	}
	result, err := h.ingestor.IngestRTLSBatch(r.Context(), evs)
	h.writeBatchResult(w, string(ingestion.StreamRTLS), start, result, err)
}

func (h *Handler) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ev ingestion.MaintenanceEvent
	body, ok := h.decode(w, r, string(ingestion.StreamMaintenance), start, &ev)
	if !ok {
		return
	}
	if len(ev.RawPayload) == 0 {
		ev.RawPayload = body
	}
	err := h.ingestor.IngestMaintenance(r.Context(), ev)
	h.writeSingleResult(w, string(ingestion.StreamMaintenance), start, err)
}

func (h *Handler) handleMaintenanceBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	evs, ok := decodeBatch[ingestion.MaintenanceEvent](h, w, r, string(ingestion.StreamMaintenance), start)
	if !ok {
		return
	}
	result, err := h.ingestor.IngestMaintenanceBatch(r.Context(), evs)
	h.writeBatchResult(w, string(ingestion.StreamMaintenance), start, result, err)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ev ingestion.ErrorEvent
	body, ok := h.decode(w, r, string(ingestion.StreamError), start, &ev)
	if !ok {
		return
	}
	if len(ev.RawPayload) == 0 {
		ev.RawPayload = body
	}
	err := h.ingestor.IngestError(r.Context(), ev)
	h.writeSingleResult(w, string(ingestion.StreamError), start, err)
}

func (h *Handler) handleErrorBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	evs, ok := decodeBatch[ingestion.ErrorEvent](h, w, r, string(ingestion.StreamError), start)
	if !ok {
		return
	}
	result, err := h.ingestor.IngestErrorBatch(r.Context(), evs)
	h.writeBatchResult(w, string(ingestion.StreamError), start, result, err)
}

// decode reads the whole body so single-event handlers can keep the received
// bytes as the raw payload.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, stream string, start time.Time, target any) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeBadRequest(w, stream, start, "read body error")
		return nil, false
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, target); err != nil {
		h.writeBadRequest(w, stream, start, "invalid json")
		return nil, false
	}
	return body, true
}

type batchRequest[T any] struct {
	Events []T `json:"events"`
}

// decodeBatch accepts the {"events": [...]} envelope, or a bare array.
func decodeBatch[T any](h *Handler, w http.ResponseWriter, r *http.Request, stream string, start time.Time) ([]T, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeBadRequest(w, stream, start, "read body error")
		return nil, false
	}
	defer r.Body.Close()

	if trimmed := bytes.TrimLeft(body, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		var evs []T
		if err := json.Unmarshal(body, &evs); err != nil {
			h.writeBadRequest(w, stream, start, "invalid json")
			return nil, false
		}
		return evs, true
	}
	var req batchRequest[T]
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeBadRequest(w, stream, start, "invalid json")
		return nil, false
	}
	return req.Events, true
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, stream string, start time.Time, message string) {
	metrics.ObserveIngest(stream, metrics.ResultError, time.Since(start))
	metrics.IncIngestError(stream, "decode")
	writeJSON(w, http.StatusBadRequest, ingestResponse{Failed: 1, Message: message})
}

func (h *Handler) writeSingleResult(w http.ResponseWriter, stream string, start time.Time, err error) {
	if err == nil {
		metrics.ObserveIngest(stream, metrics.ResultSuccess, time.Since(start))
		writeJSON(w, http.StatusOK, ingestResponse{Success: true, Processed: 1})
		return
	}
	metrics.ObserveIngest(stream, metrics.ResultError, time.Since(start))
	var verr *application.ValidationError
	if errors.As(err, &verr) {
		metrics.IncIngestError(stream, "validation")
		writeJSON(w, http.StatusBadRequest, ingestResponse{
			Failed:   1,
			Message:  verr.Error(),
			Errors:   verr.Result.Errors,
			Warnings: verr.Result.Warnings,
		})
		return
	}
	h.logger.Printf("%s ingest failed: %v", stream, err)
	writeJSON(w, http.StatusInternalServerError, ingestResponse{Failed: 1, Message: "ingest failed"})
}

// writeBatchResult always answers 200 for accepted batches; per-element
// outcomes live in the result body.
func (h *Handler) writeBatchResult(w http.ResponseWriter, stream string, start time.Time, result application.BatchResult, err error) {
	if err != nil {
		metrics.ObserveIngest(stream, metrics.ResultError, time.Since(start))
		if errors.Is(err, application.ErrBatchTooLarge) {
			metrics.IncIngestError(stream, "batch_too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, ingestResponse{Message: err.Error()})
			return
		}
		h.logger.Printf("%s batch ingest failed: %v", stream, err)
		writeJSON(w, http.StatusInternalServerError, ingestResponse{Message: "batch ingest failed"})
		return
	}
	outcome := metrics.ResultSuccess
	if !result.Success {
		outcome = metrics.ResultError
	}
	metrics.ObserveIngest(stream, outcome, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
