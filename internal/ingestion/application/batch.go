package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	ingestion "medasset-cloud/internal/ingestion/domain"
	"medasset-cloud/internal/observability/metrics"
)

// ErrBatchTooLarge is returned when a batch exceeds the configured size cap.
var ErrBatchTooLarge = errors.New("ingestion: batch exceeds max size")

// BatchFailure records one failed element of a submitted batch.
type BatchFailure struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchResult summarizes a batch submission. Indexes refer to positions in
// the submitted list.
type BatchResult struct {
	Success   bool           `json:"success"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Failures  []BatchFailure `json:"failures,omitempty"`
}

// runBatch fans run out over n elements with bounded concurrency. Every
// element is attempted exactly once; one failure never short-circuits the
// rest. Failures come back sorted by submission index.
func runBatch(ctx context.Context, n, concurrency int, run func(ctx context.Context, index int) error) BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []BatchFailure
	)
	sem := make(chan struct{}, concurrency)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := run(ctx, index); err != nil {
				mu.Lock()
				failures = append(failures, BatchFailure{Index: index, Message: err.Error()})
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
	return BatchResult{
		Success:   len(failures) == 0,
		Processed: n - len(failures),
		Failed:    len(failures),
		Failures:  failures,
	}
}

func (s *Service) checkBatchSize(n int) error {
	if n > s.maxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, s.maxBatchSize)
	}
	return nil
}

// IngestTelemetryBatch ingests a list of telemetry events concurrently.
func (s *Service) IngestTelemetryBatch(ctx context.Context, evs []ingestion.TelemetryEvent) (BatchResult, error) {
	if err := s.checkBatchSize(len(evs)); err != nil {
		return BatchResult{}, err
	}
	result := runBatch(ctx, len(evs), s.batchConcurrency, func(ctx context.Context, index int) error {
		return s.IngestTelemetry(ctx, evs[index])
	})
	metrics.ObserveBatch(string(ingestion.StreamTelemetry), result.Processed, result.Failed)
	return result, nil
}

// IngestRTLSBatch ingests a list of location pings concurrently.
func (s *Service) IngestRTLSBatch(ctx context.Context, evs []ingestion.RTLSEvent) (BatchResult, error) {
	if err := s.checkBatchSize(len(evs)); err != nil {
		return BatchResult{}, err
	}
	result := runBatch(ctx, len(evs), s.batchConcurrency, func(ctx context.Context, index int) error {
		return s.IngestRTLS(ctx, evs[index])
	})
	metrics.ObserveBatch(string(ingestion.StreamRTLS), result.Processed, result.Failed)
	return result, nil
}

// IngestMaintenanceBatch ingests a list of maintenance records concurrently.
func (s *Service) IngestMaintenanceBatch(ctx context.Context, evs []ingestion.MaintenanceEvent) (BatchResult, error) {
	if err := s.checkBatchSize(len(evs)); err != nil {
		return BatchResult{}, err
	}
	result := runBatch(ctx, len(evs), s.batchConcurrency, func(ctx context.Context, index int) error {
		return s.IngestMaintenance(ctx, evs[index])
	})
	metrics.ObserveBatch(string(ingestion.StreamMaintenance), result.Processed, result.Failed)
	return result, nil
}

// IngestErrorBatch ingests a list of device fault reports concurrently.
func (s *Service) IngestErrorBatch(ctx context.Context, evs []ingestion.ErrorEvent) (BatchResult, error) {
	if err := s.checkBatchSize(len(evs)); err != nil {
		return BatchResult{}, err
	}
	result := runBatch(ctx, len(evs), s.batchConcurrency, func(ctx context.Context, index int) error {
		return s.IngestError(ctx, evs[index])
	})
	metrics.ObserveBatch(string(ingestion.StreamError), result.Processed, result.Failed)
	return result, nil
}
