// Package withdrawal implements the withdrawal-bundle lifecycle: a batch
// of pending peg-out UTXOs (an "M6") submitted to the parent chain,
// tracked through Submitted -> {Confirmed, Failed} with a cooldown gap
// between a failure and the next bundle's submission.
package withdrawal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/rollback"
	"github.com/coinshift-network/coinshift-core/internal/storage"
	"github.com/coinshift-network/coinshift-core/pkg/types"
)

// FailureGap is the number of blocks that must pass after a bundle fails
// before the next pending bundle may be submitted (WITHDRAWAL_BUNDLE_FAILURE_GAP).
const FailureGap = 4

var (
	ErrBundleNotFound       = errors.New("withdrawal: bundle not found")
	ErrBundleAlreadyExists  = errors.New("withdrawal: bundle already exists")
	ErrAlreadyPending       = errors.New("withdrawal: a bundle is already pending")
	ErrFailureGapNotElapsed = errors.New("withdrawal: failure gap has not elapsed")
	ErrInvalidStatusChange  = errors.New("withdrawal: invalid status transition")
)

// Status is a bundle's lifecycle position.
type Status uint8

const (
	StatusSubmitted Status = iota
	StatusConfirmed
	StatusFailed
	// StatusUnknownConfirmed marks a bundle this node never submitted but
	// which the peg protocol reports confirmed anyway — its Outputs
	// are captured explicitly from the peg data at confirmation time rather
	// than re-derived later.
	StatusUnknownConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusUnknownConfirmed:
		return "unknown_confirmed"
	default:
		return "unknown"
	}
}

// Bundle is an aggregation of withdrawal UTXOs submitted to the parent
// chain as a single peg-out (M6), identified by M6id.
type Bundle struct {
	ID                types.Hash       `json:"id"`
	Outputs           []types.OutPoint `json:"outputs"`
	Status            Status           `json:"status"`
	SubmittedAtHeight uint64           `json:"submitted_at_height"`
	ResolvedAtHeight  *uint64          `json:"resolved_at_height,omitempty"`
}

var (
	prefixBundle = []byte("withdrawal_bundles/")
	keyPending   = []byte("pending_withdrawal_bundle")
	keyLastFail  = []byte("latest_failed_withdrawal_bundle")

	rollbackBundle  = []byte("rwithdrawal/b/")
	rollbackPending = []byte("rwithdrawal/p/")
	rollbackFail    = []byte("rwithdrawal/f/")
)

func bundleKey(id types.Hash) []byte {
	return append(append([]byte(nil), prefixBundle...), id[:]...)
}

func rollbackBundleKey(id types.Hash) []byte {
	return append(append([]byte(nil), rollbackBundle...), id[:]...)
}

// Store persists the withdrawal_bundles table plus the pending-bundle and
// latest-failure pointers.
type Store struct {
	db  storage.DB
	log *rollback.Log
}

// NewStore creates a withdrawal Store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db, log: rollback.NewLog(db)}
}

// Get retrieves a bundle by ID.
func (s *Store) Get(id types.Hash) (*Bundle, error) {
	data, err := s.db.Get(bundleKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("withdrawal: unmarshal %s: %w", id, err)
	}
	return &b, nil
}

// Pending returns the currently pending bundle, if any.
func (s *Store) Pending() (*Bundle, bool, error) {
	data, err := s.db.Get(keyPending)
	if err != nil {
		return nil, false, nil
	}
	var id types.Hash
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, false, fmt.Errorf("withdrawal: unmarshal pending pointer: %w", err)
	}
	b, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// LatestFailedHeight returns the height at which a bundle last failed, and
// whether any bundle has ever failed.
func (s *Store) LatestFailedHeight() (uint64, bool, error) {
	data, err := s.db.Get(keyLastFail)
	if err != nil {
		return 0, false, nil
	}
	return decodeHeight(data), true, nil
}

// CanSubmit reports whether a new bundle may be submitted at currentHeight:
// no bundle is currently pending, and at least FailureGap blocks have
// passed since the last failure (if any).
func (s *Store) CanSubmit(currentHeight uint64) (bool, error) {
	if _, pending, err := s.Pending(); err != nil {
		return false, err
	} else if pending {
		return false, nil
	}
	failedAt, hasFailed, err := s.LatestFailedHeight()
	if err != nil {
		return false, err
	}
	if hasFailed && currentHeight < failedAt+FailureGap {
		return false, nil
	}
	return true, nil
}

// Submit persists a new bundle as Submitted at height and marks it
// pending. Fails if a bundle is already pending or the failure gap has
// not elapsed.
func (s *Store) Submit(batch storage.Batch, height uint64, id types.Hash, outputs []types.OutPoint) (*Bundle, error) {
	if has, err := s.db.Has(bundleKey(id)); err != nil {
		return nil, err
	} else if has {
		return nil, fmt.Errorf("%w: %s", ErrBundleAlreadyExists, id)
	}
	if ok, err := s.CanSubmit(height); err != nil {
		return nil, err
	} else if !ok {
		if _, pending, _ := s.Pending(); pending {
			return nil, ErrAlreadyPending
		}
		return nil, ErrFailureGapNotElapsed
	}

	b := &Bundle{ID: id, Outputs: outputs, Status: StatusSubmitted, SubmittedAtHeight: height}
	if err := s.putBundle(batch, height, nil, b); err != nil {
		return nil, err
	}
	if err := s.setPending(batch, height, nil, &id); err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm transitions a Submitted bundle to Confirmed and clears the
// pending pointer.
func (s *Store) Confirm(batch storage.Batch, height uint64, id types.Hash) (*Bundle, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusSubmitted {
		return nil, fmt.Errorf("%w: bundle %s is %s, not submitted", ErrInvalidStatusChange, id, b.Status)
	}
	old := *b
	b.Status = StatusConfirmed
	b.ResolvedAtHeight = &height
	if err := s.putBundle(batch, height, &old, b); err != nil {
		return nil, err
	}
	pendingID, _, _ := s.pendingID()
	if pendingID != nil && *pendingID == id {
		if err := s.setPending(batch, height, pendingID, nil); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Fail transitions a Submitted bundle to Failed, clears the pending
// pointer, and records height as the latest failure (gating the next
// submission for FailureGap blocks).
func (s *Store) Fail(batch storage.Batch, height uint64, id types.Hash) (*Bundle, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusSubmitted {
		return nil, fmt.Errorf("%w: bundle %s is %s, not submitted", ErrInvalidStatusChange, id, b.Status)
	}
	old := *b
	b.Status = StatusFailed
	b.ResolvedAtHeight = &height
	if err := s.putBundle(batch, height, &old, b); err != nil {
		return nil, err
	}
	pendingID, _, _ := s.pendingID()
	if pendingID != nil && *pendingID == id {
		if err := s.setPending(batch, height, pendingID, nil); err != nil {
			return nil, err
		}
	}
	oldFailedAt, hadFailed, err := s.LatestFailedHeight()
	if err != nil {
		return nil, err
	}
	var prevFail *uint64
	if hadFailed {
		prevFail = &oldFailedAt
	}
	if err := s.setLatestFailed(batch, height, prevFail, &height); err != nil {
		return nil, err
	}
	return b, nil
}

// MarkUnknownConfirmed records a bundle this node never submitted as
// UnknownConfirmed, persisting exactly the set of UTXOs the peg data
// reports it referenced (outputs) rather than re-deriving them later —
// those outputs are then treated as spent by the two-way-peg applier.
func (s *Store) MarkUnknownConfirmed(batch storage.Batch, height uint64, id types.Hash, outputs []types.OutPoint) (*Bundle, error) {
	if has, err := s.db.Has(bundleKey(id)); err != nil {
		return nil, err
	} else if has {
		return nil, fmt.Errorf("%w: %s", ErrBundleAlreadyExists, id)
	}
	b := &Bundle{ID: id, Outputs: outputs, Status: StatusUnknownConfirmed, SubmittedAtHeight: height, ResolvedAtHeight: &height}
	if err := s.putBundle(batch, height, nil, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Undo reverses whichever of Submit/Confirm/Fail/MarkUnknownConfirmed was
// staged for id at height, used by disconnect: the bundle record and the
// pending/latest-failure pointers each carry their own independent
// rollback history, so undoing all three at height reverses exactly the
// subset any given call actually touched (a no-op pops nothing for the
// pointer tables it didn't touch).
func (s *Store) Undo(batch storage.Batch, height uint64, id types.Hash) error {
	if err := s.undoPending(batch, height); err != nil {
		return err
	}
	if err := s.undoLatestFailed(batch, height); err != nil {
		return err
	}
	return s.undoBundle(batch, height, id)
}

func (s *Store) putBundle(batch storage.Batch, height uint64, old, next *Bundle) error {
	var prevData []byte
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return fmt.Errorf("withdrawal: marshal %s: %w", old.ID, err)
		}
		prevData = data
	}
	if err := s.log.Push(batch, rollbackBundleKey(next.ID), height, prevData); err != nil {
		return fmt.Errorf("withdrawal: push bundle rollback: %w", err)
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("withdrawal: marshal %s: %w", next.ID, err)
	}
	return batch.Put(bundleKey(next.ID), data)
}

func (s *Store) undoBundle(batch storage.Batch, height uint64, id types.Hash) error {
	prevData, ok, err := s.log.PopAt(batch, rollbackBundleKey(id), height)
	if err != nil {
		return fmt.Errorf("withdrawal: pop bundle rollback: %w", err)
	}
	if !ok {
		return nil
	}
	if prevData == nil {
		return batch.Delete(bundleKey(id))
	}
	return batch.Put(bundleKey(id), prevData)
}

func rollbackPendingKey() []byte { return rollbackPending }
func rollbackFailKey() []byte    { return rollbackFail }

func (s *Store) pendingID() (*types.Hash, bool, error) {
	data, err := s.db.Get(keyPending)
	if err != nil {
		return nil, false, nil
	}
	var id types.Hash
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, false, err
	}
	return &id, true, nil
}

func (s *Store) setPending(batch storage.Batch, height uint64, old, next *types.Hash) error {
	var prevData []byte
	if old != nil {
		data, err := json.Marshal(old)
		if err != nil {
			return err
		}
		prevData = data
	}
	if err := s.log.Push(batch, rollbackPendingKey(), height, prevData); err != nil {
		return fmt.Errorf("withdrawal: push pending rollback: %w", err)
	}
	if next == nil {
		return batch.Delete(keyPending)
	}
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return batch.Put(keyPending, data)
}

func (s *Store) undoPending(batch storage.Batch, height uint64) error {
	prevData, ok, err := s.log.PopAt(batch, rollbackPendingKey(), height)
	if err != nil {
		return fmt.Errorf("withdrawal: pop pending rollback: %w", err)
	}
	if !ok {
		return nil
	}
	if prevData == nil {
		return batch.Delete(keyPending)
	}
	return batch.Put(keyPending, prevData)
}

func (s *Store) setLatestFailed(batch storage.Batch, height uint64, old, next *uint64) error {
	var prevData []byte
	if old != nil {
		prevData = encodeHeight(*old)
	}
	if err := s.log.Push(batch, rollbackFailKey(), height, prevData); err != nil {
		return fmt.Errorf("withdrawal: push latest-failure rollback: %w", err)
	}
	if next == nil {
		return batch.Delete(keyLastFail)
	}
	return batch.Put(keyLastFail, encodeHeight(*next))
}

func (s *Store) undoLatestFailed(batch storage.Batch, height uint64) error {
	prevData, ok, err := s.log.PopAt(batch, rollbackFailKey(), height)
	if err != nil {
		return fmt.Errorf("withdrawal: pop latest-failure rollback: %w", err)
	}
	if !ok {
		return nil
	}
	if prevData == nil {
		return batch.Delete(keyLastFail)
	}
	return batch.Put(keyLastFail, prevData)
}

// encodeHeight/decodeHeight marshal as JSON (not a fixed-width binary
// encoding) because the value is also staged through the rollback log,
// whose history entries are themselves JSON-encoded.
func encodeHeight(h uint64) []byte {
	data, _ := json.Marshal(h)
	return data
}

func decodeHeight(b []byte) uint64 {
	var h uint64
	_ = json.Unmarshal(b, &h)
	return h
}
