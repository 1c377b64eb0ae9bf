package store

import (
	"context"
	"time"

	"github.com/l0p7/usercheck/internal/metrics"
)

type instrumented struct {
	next     ReportStore
	recorder *metrics.Recorder
}

// Instrument wraps a store so every save and load is counted and timed.
func Instrument(next ReportStore, recorder *metrics.Recorder) ReportStore {
	if recorder == nil {
		return next
	}
	return &instrumented{next: next, recorder: recorder}
}

func (s *instrumented) Save(ctx context.Context, entry Entry) error {
	start := time.Now()
	err := s.next.Save(ctx, entry)
	result := metrics.StoreResultOK
	if err != nil {
		result = metrics.StoreResultError
	}
	s.recorder.ObserveStore(metrics.StoreOperationSave, result, time.Since(start))
	return err
}

func (s *instrumented) Latest(ctx context.Context) (Entry, bool, error) {
	start := time.Now()
	entry, ok, err := s.next.Latest(ctx)
	s.recorder.ObserveStore(metrics.StoreOperationLoad, loadResult(ok, err), time.Since(start))
	return entry, ok, err
}

func (s *instrumented) Get(ctx context.Context, id string) (Entry, bool, error) {
	start := time.Now()
	entry, ok, err := s.next.Get(ctx, id)
	s.recorder.ObserveStore(metrics.StoreOperationLoad, loadResult(ok, err), time.Since(start))
	return entry, ok, err
}

func (s *instrumented) Size(ctx context.Context) (int64, error) {
	return s.next.Size(ctx)
}

func (s *instrumented) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

func loadResult(ok bool, err error) metrics.StoreResult {
	switch {
	case err != nil:
		return metrics.StoreResultError
	case !ok:
		return metrics.StoreResultMiss
	default:
		return metrics.StoreResultOK
	}
}
