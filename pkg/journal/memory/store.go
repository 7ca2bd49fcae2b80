package memory

import (
	"sync"

	"github.com/johnw42/remapd/pkg/journal"
)

// Journal keeps the most recent entries in memory. Used when no journal
// path is configured, and in tests.
type Journal struct {
	mu      sync.Mutex
	entries []journal.Entry
	nextID  int64
	limit   int
}

func NewJournal(limit int) *Journal {
	return &Journal{limit: limit, nextID: 1}
}

func (j *Journal) Append(e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.ID = j.nextID
	j.nextID++
	j.entries = append(j.entries, e)
	if len(j.entries) > j.limit {
		j.entries = j.entries[len(j.entries)-j.limit:]
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) ([]journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]journal.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, j.entries[len(j.entries)-1-i])
	}
	return out, nil
}

func (j *Journal) Close() error {
	return nil
}
