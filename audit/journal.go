package audit

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vaultcore/core/types"
	"vaultcore/storage"
)

var journalPrefix = []byte("audit/journal/")

// Record is a single journal entry. Every mutating vault operation emits one
// event, so the journal is a complete ordered history of state transitions.
type Record struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Timestamp  int64             `json:"timestamp"`
	EventType  string            `json:"eventType"`
	Attributes map[string]string `json:"attributes"`
}

// Journal is an append-only event log backed by the key-value store. It
// implements the engine's event sink, so wiring it in captures every emitted
// event with a stable sequence number and a unique record id.
type Journal struct {
	db  storage.Database
	now func() time.Time

	mu   sync.Mutex
	next uint64
}

// OpenJournal scans existing entries to resume the sequence counter.
func OpenJournal(db storage.Database) (*Journal, error) {
	j := &Journal{db: db, now: time.Now}
	err := db.Iterate(journalPrefix, func(key, _ []byte) error {
		if len(key) != len(journalPrefix)+8 {
			return fmt.Errorf("audit: malformed journal key %q", key)
		}
		seq := binary.BigEndian.Uint64(key[len(journalPrefix):])
		if seq >= j.next {
			j.next = seq + 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// SetClock overrides the wall clock, for tests.
func (j *Journal) SetClock(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

func journalKey(seq uint64) []byte {
	key := make([]byte, len(journalPrefix)+8)
	copy(key, journalPrefix)
	binary.BigEndian.PutUint64(key[len(journalPrefix):], seq)
	return key
}

// Emit appends the event to the journal. A failed write drops the record
// without consuming its sequence number and never surfaces to the engine.
func (j *Journal) Emit(ev *types.Event) {
	if ev == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	record := Record{
		ID:         uuid.NewString(),
		Sequence:   j.next,
		Timestamp:  j.now().Unix(),
		EventType:  ev.Type,
		Attributes: make(map[string]string, len(ev.Attributes)),
	}
	for k, v := range ev.Attributes {
		record.Attributes[k] = v
	}
	raw, err := json.Marshal(&record)
	if err != nil {
		return
	}
	if err := j.db.Put(journalKey(record.Sequence), raw); err != nil {
		return
	}
	j.next++
}

// Records returns up to limit entries starting at the given sequence, in
// order. A zero limit returns everything from start onward.
func (j *Journal) Records(start uint64, limit int) ([]Record, error) {
	var out []Record
	errStop := errors.New("stop")
	err := j.db.Iterate(journalPrefix, func(key, value []byte) error {
		if len(key) != len(journalPrefix)+8 {
			return fmt.Errorf("audit: malformed journal key %q", key)
		}
		seq := binary.BigEndian.Uint64(key[len(journalPrefix):])
		if seq < start {
			return nil
		}
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("audit: decode record %d: %w", seq, err)
		}
		out = append(out, record)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

// Len reports the number of appended records.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}
