// Package progress defines the event structures emitted during a crawl.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the crawl lifecycle milestone represented by an Event.
type Stage string

// Supported progress stages, in the order a crawl normally passes through them.
const (
	StageCreated       Stage = "created"
	StageFetching      Stage = "fetching"
	StageSourceDone    Stage = "source_done"
	StageNormalizing   Stage = "normalizing"
	StageDeduplicating Stage = "deduplicating"
	StageClassifying   Stage = "classifying"
	StagePersisting    Stage = "persisting"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Event captures a single crawl milestone.
type Event struct {
	// RunID uniquely identifies a crawl call using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Keyword is set on created events so sinks can label the run.
	Keyword string
	// Source scopes source_done events to an adapter name.
	Source string
	// Found counts records: per source on source_done, merged batch on completed.
	Found int64
	// Saved counts persisted records on completed events.
	Saved int64
	// Failed marks a source_done event whose adapter returned an error.
	Failed bool
	// Dur captures adapter latency or total crawl time on terminal events.
	Dur time.Duration
	// Note carries low-volume context such as the error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCreated:
		if e.Keyword == "" {
			return errors.New("created requires keyword")
		}
	case StageSourceDone:
		if e.Source == "" {
			return errors.New("source done requires source")
		}
	case StageFetching, StageNormalizing, StageDeduplicating, StageClassifying,
		StagePersisting, StageCompleted, StageFailed:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Found < 0 || e.Saved < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
