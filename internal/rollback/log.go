// Package rollback implements the height-stamped history log that lets the
// block engine undo any mutation it made while connecting a block, so
// disconnect reproduces byte-identical pre-connect state.
package rollback

import (
	"encoding/json"
	"fmt"

	"github.com/coinshift-network/coinshift-core/internal/storage"
)

// entry pairs a height with the entity's encoded value immediately before
// that height's block was connected. A nil Value means the entity did not
// exist prior to that height (so disconnecting to it means deleting the
// entity entirely).
type entry struct {
	Height uint64          `json:"height"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Log records, per entity key, the history of values it held before each
// height that mutated it. Each history is stored as a single JSON-encoded
// entry under the entity key exactly as given (callers choose its
// prefix, e.g. `ru/`, `rswap/`), via the same Batch used to apply
// the rest of a block's writes — so the history update is atomic with the
// mutation it records.
type Log struct {
	db storage.DB
}

// NewLog wraps db; entity keys are used on it without any added prefix.
func NewLog(db storage.DB) *Log {
	return &Log{db: db}
}

// Push records that entityKey held the given previous value (nil if the
// entity did not exist) immediately before height. Call this once per
// entity per height, before writing the entity's new value, staged on the
// same batch as the mutation itself.
func (l *Log) Push(batch storage.Batch, entityKey []byte, height uint64, previousValue []byte) error {
	history, err := l.history(entityKey)
	if err != nil {
		return err
	}
	var raw json.RawMessage
	if previousValue != nil {
		raw = json.RawMessage(append([]byte(nil), previousValue...))
	}
	history = append(history, entry{Height: height, Value: raw})
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("rollback: encode history for %x: %w", entityKey, err)
	}
	return batch.Put(entityKey, encoded)
}

// PopAt removes and returns the history entry recorded for height,
// restoring the entity to the value it held before that height. ok is
// false if no entry exists for that height (nothing to undo).
func (l *Log) PopAt(batch storage.Batch, entityKey []byte, height uint64) (previousValue []byte, ok bool, err error) {
	history, err := l.history(entityKey)
	if err != nil {
		return nil, false, err
	}
	idx := -1
	for i, e := range history {
		if e.Height == height {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false, nil
	}
	popped := history[idx]
	history = append(history[:idx], history[idx+1:]...)

	if len(history) == 0 {
		if err := batch.Delete(entityKey); err != nil {
			return nil, false, err
		}
	} else {
		encoded, err := json.Marshal(history)
		if err != nil {
			return nil, false, fmt.Errorf("rollback: encode history for %x: %w", entityKey, err)
		}
		if err := batch.Put(entityKey, encoded); err != nil {
			return nil, false, err
		}
	}

	if popped.Value == nil {
		return nil, true, nil
	}
	return []byte(popped.Value), true, nil
}

// Latest returns the most recent recorded previous value for entityKey, or
// ok=false if the entity has no recorded history.
func (l *Log) Latest(entityKey []byte) (previousValue []byte, ok bool, err error) {
	history, err := l.history(entityKey)
	if err != nil {
		return nil, false, err
	}
	if len(history) == 0 {
		return nil, false, nil
	}
	last := history[len(history)-1]
	if last.Value == nil {
		return nil, true, nil
	}
	return []byte(last.Value), true, nil
}

func (l *Log) history(entityKey []byte) ([]entry, error) {
	raw, err := l.db.Get(entityKey)
	if err != nil {
		return nil, nil
	}
	var history []entry
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("rollback: decode history for %x: %w", entityKey, err)
	}
	return history, nil
}
