package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/johnw42/remapd/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Append(journal.Entry{Time: at, Kind: journal.KindWorkerStart, Detail: "pid 100"}))
	require.NoError(t, j.Append(journal.Entry{Time: at.Add(time.Second), Kind: journal.KindDispatch, Rule: "caps to escape", Detail: "Caps_Lock"}))
	require.NoError(t, j.Append(journal.Entry{Time: at.Add(2 * time.Second), Kind: journal.KindWorkerExit, Detail: "exit status 1"}))

	entries, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, journal.KindWorkerExit, entries[0].Kind)
	assert.Equal(t, journal.KindDispatch, entries[1].Kind)
	assert.Equal(t, "caps to escape", entries[1].Rule)
	assert.Equal(t, at.Add(time.Second).UnixMilli(), entries[1].Time.UnixMilli())
}

func TestRecentOnEmptyJournal(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	log := zap.NewNop().Sugar()

	j, err := NewJournal(path, log)
	require.NoError(t, err)
	require.NoError(t, j.Append(journal.Entry{Time: time.Now(), Kind: journal.KindWorkerStart}))
	require.NoError(t, j.Close())

	j, err = NewJournal(path, log)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.KindWorkerStart, entries[0].Kind)
}
