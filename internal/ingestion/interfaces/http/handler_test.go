package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medasset-cloud/internal/ingestion/application"
	ingestion "medasset-cloud/internal/ingestion/domain"
)

type stubIngestor struct {
	singleErr   error
	batchResult application.BatchResult
	batchErr    error

	telemetry   []ingestion.TelemetryEvent
	rtls        []ingestion.RTLSEvent
	maintenance []ingestion.MaintenanceEvent
	errs        []ingestion.ErrorEvent
}

func (s *stubIngestor) IngestTelemetry(ctx context.Context, ev ingestion.TelemetryEvent) error {
	s.telemetry = append(s.telemetry, ev)
	return s.singleErr
}

func (s *stubIngestor) IngestTelemetryBatch(ctx context.Context, evs []ingestion.TelemetryEvent) (application.BatchResult, error) {
	s.telemetry = append(s.telemetry, evs...)
	return s.batchResult, s.batchErr
}

func (s *stubIngestor) IngestRTLS(ctx context.Context, ev ingestion.RTLSEvent) error {
	s.rtls = append(s.rtls, ev)
	return s.singleErr
}

func (s *stubIngestor) IngestRTLSBatch(ctx context.Context, evs []ingestion.RTLSEvent) (application.BatchResult, error) {
	s.rtls = append(s.rtls, evs...)
	return s.batchResult, s.batchErr
}

func (s *stubIngestor) IngestMaintenance(ctx context.Context, ev ingestion.MaintenanceEvent) error {
	s.maintenance = append(s.maintenance, ev)
	return s.singleErr
}

func (s *stubIngestor) IngestMaintenanceBatch(ctx context.Context, evs []ingestion.MaintenanceEvent) (application.BatchResult, error) {
	s.maintenance = append(s.maintenance, evs...)
	return s.batchResult, s.batchErr
}

func (s *stubIngestor) IngestError(ctx context.Context, ev ingestion.ErrorEvent) error {
	s.errs = append(s.errs, ev)
	return s.singleErr
}

func (s *stubIngestor) IngestErrorBatch(ctx context.Context, evs []ingestion.ErrorEvent) (application.BatchResult, error) {
	s.errs = append(s.errs, evs...)
	return s.batchResult, s.batchErr
}

func newTestHandler(t *testing.T, ingestor *stubIngestor) *Handler {
	t.Helper()
	handler, err := NewHandler(ingestor, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func postJSON(handler http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SingleSuccess(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := newTestHandler(t, ingestor)

	rec := postJSON(handler, "/ingest/telemetry", `{"timestamp":"2026-03-10T09:00:00Z","facilityId":"f1","serviceName":"gw","environment":"production"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Processed != 1 || resp.Failed != 0 {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(ingestor.telemetry) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(ingestor.telemetry))
	}
}

func TestHandler_RawPayloadDefaultsToBody(t *testing.T) {
	ingestor := &stubIngestor{}
	handler := newTestHandler(t, ingestor)

	body := `{"timestamp":"2026-03-10T09:00:00Z","assetId":"a1","facilityId":"f1","errorCode":"E-1"}`
	rec := postJSON(handler, "/ingest/error", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(ingestor.errs[0].RawPayload) != body {
		t.Fatalf("raw payload must default to the received body, got %q", ingestor.errs[0].RawPayload)
	}
}

func TestHandler_ValidationFailure(t *testing.T) {
	ingestor := &stubIngestor{
		singleErr: &application.ValidationError{
			Stream: ingestion.StreamTelemetry,
			Result: ingestion.ValidationResult{
				Errors: []ingestion.FieldError{{Field: "facilityId", Code: ingestion.CodeRequired, Message: "facilityId is required"}},
			},
		},
	}
	handler := newTestHandler(t, ingestor)

	rec := postJSON(handler, "/ingest/telemetry", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Failed != 1 || len(resp.Errors) != 1 || resp.Errors[0].Field != "facilityId" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestHandler_PersistenceFailure(t *testing.T) {
	handler := newTestHandler(t, &stubIngestor{singleErr: errors.New("db down")})

	rec := postJSON(handler, "/ingest/rtls", `{"timestamp":"2026-03-10T09:00:00Z","assetId":"a1","facilityId":"f1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatal("internal error details must not leak")
	}
}

func TestHandler_InvalidJSON(t *testing.T) {
	handler := newTestHandler(t, &stubIngestor{})
	rec := postJSON(handler, "/ingest/maintenance", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_BatchEnvelope(t *testing.T) {
	ingestor := &stubIngestor{
		batchResult: application.BatchResult{
			Success:   false,
			Processed: 1,
			Failed:    1,
			Failures:  []application.BatchFailure{{Index: 1, Message: "element 1 rejected"}},
		},
	}
	handler := newTestHandler(t, ingestor)

	rec := postJSON(handler, "/ingest/error/batch", `{"events":[{"errorCode":"E-1"},{"errorCode":""}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch submissions answer 200, got %d", rec.Code)
	}
	var result application.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Success || result.Processed != 1 || result.Failed != 1 || result.Failures[0].Index != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(ingestor.errs) != 2 {
		t.Fatalf("expected both envelope elements forwarded, got %d", len(ingestor.errs))
	}
}

func TestHandler_BatchAcceptsBareArray(t *testing.T) {
	ingestor := &stubIngestor{batchResult: application.BatchResult{Success: true, Processed: 1}}
	handler := newTestHandler(t, ingestor)

	rec := postJSON(handler, "/ingest/rtls/batch", `[{"assetId":"a1"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(ingestor.rtls) != 1 || ingestor.rtls[0].AssetID != "a1" {
		t.Fatalf("bare array not forwarded: %+v", ingestor.rtls)
	}
}

func TestHandler_BatchTooLarge(t *testing.T) {
	handler := newTestHandler(t, &stubIngestor{batchErr: application.ErrBatchTooLarge})
	rec := postJSON(handler, "/ingest/telemetry/batch", `{"events":[]}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandler_MethodAndPathRouting(t *testing.T) {
	handler := newTestHandler(t, &stubIngestor{})

	req := httptest.NewRequest(http.MethodGet, "/ingest/telemetry", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = postJSON(handler, "/ingest/unknown", `{}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
