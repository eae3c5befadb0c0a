package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/intraline/kbcore/internal/domain"
	"github.com/intraline/kbcore/internal/telemetry"
)

// DriftChecker compares the metadata registry against the vector store.
type DriftChecker interface {
	CheckDrift(ctx context.Context) ([]*domain.DriftError, error)
}

// DriftMonitor periodically audits dual-store consistency and logs every
// source whose registry chunk count disagrees with the vector store. It
// never repairs drift itself; fixing is an explicit reconcile.
type DriftMonitor struct {
	checker DriftChecker
}

// NewDriftMonitor creates a new DriftMonitor instance
func NewDriftMonitor(checker DriftChecker) *DriftMonitor {
	return &DriftMonitor{checker: checker}
}

// Run performs one audit pass. Implements the worker Task contract.
func (m *DriftMonitor) Run(ctx context.Context) error {
	drift, err := m.checker.CheckDrift(ctx)
	if err != nil {
		return fmt.Errorf("drift check failed: %w", err)
	}

	if len(drift) == 0 {
		return nil
	}

	for _, d := range drift {
		log.Printf("drift detected: %v", d)
		telemetry.CaptureError(ctx, d)
	}
	log.Printf("drift check: %d source(s) out of sync, run reconcile to repair", len(drift))
	return nil
}
