// Package domain defines the ingestion run contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

var (
	// ErrRunInProgress indicates another run already holds the account lock.
	ErrRunInProgress = errors.New("ingest_run_in_progress")
	// ErrEmptyWindow indicates the watermark already covers today.
	ErrEmptyWindow = errors.New("ingest_window_empty")
)

// RunRequest asks for one ingestion run against a single account. Window is
// optional; when nil the run resumes from the account's watermark.
type RunRequest struct {
	AccountID uuid.UUID
	Window    *vendordomain.Window
}

// RunResult summarizes a completed run.
type RunResult struct {
	AccountID uuid.UUID           `json:"account_id"`
	Provider  string              `json:"provider"`
	Window    vendordomain.Window `json:"window"`
	Fetched   int                 `json:"fetched"`
	Skipped   int                 `json:"skipped"`
	Upserted  int                 `json:"upserted"`
	Attempts  int                 `json:"attempts"`
	Refreshed bool                `json:"refreshed"`
	Duration  time.Duration       `json:"duration"`
}

type Service interface {
	// RunAccount executes one full fetch-normalize-upsert cycle.
	RunAccount(ctx context.Context, req RunRequest) (*RunResult, error)
	// PlanWindow computes the next window for an account from its watermark.
	PlanWindow(ctx context.Context, accountID uuid.UUID) (vendordomain.Window, error)
}
