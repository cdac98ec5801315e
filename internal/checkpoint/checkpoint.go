// Package checkpoint persists step progress so interrupted runs resume
// instead of restarting.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

// ErrNotFound is returned by Load when no snapshot exists for the step.
var ErrNotFound = errors.New("checkpoint not found")

// ErrConfigDrift marks a snapshot whose recorded configuration digest does
// not match the step's current configuration. Resuming from it requires an
// explicit opt-in; silently merging incompatible state is never done.
var ErrConfigDrift = errors.New("checkpoint config drift")

// Failure records a terminally failed task key with its reason, so the task
// is not retried after a restart.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Snapshot is a durable view of one step's progress: which task keys are
// done, which failed terminally, and which are still pending together with
// their attempt and backoff state.
type Snapshot struct {
	StepID       string          `json:"step_id"`
	ConfigDigest string          `json:"config_digest"`
	Version      int             `json:"version"`
	SavedAt      time.Time       `json:"saved_at"`
	Completed    []string        `json:"completed"`
	Failed       []Failure       `json:"failed"`
	Pending      []pipeline.Task `json:"pending"`
	Finalized    bool            `json:"finalized"`
}

// CompletedSet returns the completed keys as a set.
func (s Snapshot) CompletedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Completed))
	for _, k := range s.Completed {
		out[k] = struct{}{}
	}
	return out
}

// FailedKeys returns the terminally failed keys.
func (s Snapshot) FailedKeys() []string {
	out := make([]string, 0, len(s.Failed))
	for _, f := range s.Failed {
		out = append(out, f.Key)
	}
	return out
}

// Store durably persists snapshots. Save must be atomic from a reader's
// perspective: Load never observes a partially written snapshot.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, stepID string) (Snapshot, error)
	Delete(ctx context.Context, stepID string) error
}

// ConfigDigest hashes the step's seed identifiers and options so a resumed
// run can detect configuration drift.
func ConfigDigest(seeds []string, options any) (string, error) {
	payload := struct {
		Seeds   []string `json:"seeds"`
		Options any      `json:"options"`
	}{Seeds: seeds, Options: options}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal config digest payload: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(raw)), nil
}

// Verify compares a loaded snapshot against the step's current digest.
func Verify(snap Snapshot, digest string) error {
	if snap.ConfigDigest != digest {
		return fmt.Errorf("%w: step %s", ErrConfigDrift, snap.StepID)
	}
	return nil
}
