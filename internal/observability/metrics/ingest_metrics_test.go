package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

func TestClassifyIngestReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, IngestReasonDeadlineExceeded},
		{"auth_denied", fmt.Errorf("refresh: %w", vendordomain.ErrAuthDenied), IngestReasonAuthDenied},
		{"rate_limited", vendordomain.ErrRateLimited, IngestReasonRateLimited},
		{"unavailable", vendordomain.ErrUnavailable, IngestReasonUnavailable},
		{"malformed", vendordomain.ErrMalformed, IngestReasonMalformed},
		{"unknown", errors.New("boom"), IngestReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyIngestReason(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsIngestErrorRetryable(t *testing.T) {
	if !IsIngestErrorRetryable(vendordomain.ErrRateLimited) {
		t.Fatal("rate limited should be retryable")
	}
	if !IsIngestErrorRetryable(vendordomain.ErrUnavailable) {
		t.Fatal("unavailable should be retryable")
	}
	if IsIngestErrorRetryable(vendordomain.ErrAuthDenied) {
		t.Fatal("auth denied should not be retryable")
	}
	if IsIngestErrorRetryable(nil) {
		t.Fatal("nil should not be retryable")
	}
}

func TestIngestMetricsRecordsWithoutPanic(t *testing.T) {
	m := newIngestMetrics(prometheus.NewRegistry(), Config{ServiceName: "cloudtally", Environment: "test"})

	m.IncCostRequest(CostRequestDaily)
	m.IncIngestRun("aws")
	m.IncIngestError("aws", vendordomain.ErrRateLimited)
	m.AddIngestRecords("aws", 42)
	m.ObserveIngestDuration("aws", 1500*time.Millisecond)
	m.ObserveRunLoopLag(-time.Second)
}
