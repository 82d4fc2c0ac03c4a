package audit

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vaultcore/core/types"
	"vaultcore/storage"
)

func sampleEvent(kind, amount string) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"amount": amount,
		},
	}
}

func TestJournalAppendsInOrder(t *testing.T) {
	db := storage.NewMemDB()
	journal, err := OpenJournal(db)
	require.NoError(t, err)
	journal.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })

	journal.Emit(sampleEvent("vault.deposited", "250"))
	journal.Emit(sampleEvent("vault.withdrawn", "100"))
	journal.Emit(nil)
	require.Equal(t, uint64(2), journal.Len())

	records, err := journal.Records(0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(0), records[0].Sequence)
	require.Equal(t, "vault.deposited", records[0].EventType)
	require.Equal(t, "250", records[0].Attributes["amount"])
	require.Equal(t, uint64(1), records[1].Sequence)
	require.NotEqual(t, records[0].ID, records[1].ID)
	require.Equal(t, int64(1_700_000_000), records[0].Timestamp)
}

func TestJournalResumesSequence(t *testing.T) {
	db := storage.NewMemDB()
	journal, err := OpenJournal(db)
	require.NoError(t, err)
	journal.Emit(sampleEvent("vault.deposited", "1"))
	journal.Emit(sampleEvent("vault.deposited", "2"))

	reopened, err := OpenJournal(db)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reopened.Len())
	reopened.Emit(sampleEvent("vault.deposited", "3"))

	records, err := reopened.Records(0, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, uint64(2), records[2].Sequence)
}

func TestJournalWindowedReads(t *testing.T) {
	db := storage.NewMemDB()
	journal, err := OpenJournal(db)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		journal.Emit(sampleEvent("vault.transfer", "1"))
	}

	records, err := journal.Records(2, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(2), records[0].Sequence)
	require.Equal(t, uint64(3), records[1].Sequence)
}

func TestExportWritesArtefacts(t *testing.T) {
	db := storage.NewMemDB()
	journal, err := OpenJournal(db)
	require.NoError(t, err)
	journal.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	journal.Emit(sampleEvent("vault.deposited", "250"))
	journal.Emit(sampleEvent("vault.strategy.reported", "100"))

	dir := t.TempDir()
	result, err := journal.Export(dir, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.FileExists(t, result.CSVPath)
	require.FileExists(t, result.ParquetPath)

	file, err := os.Open(result.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"sequence", "id", "timestamp", "event_type", "attributes"}, rows[0])
	require.Equal(t, "vault.deposited", rows[1][3])
	require.Equal(t, "vault.strategy.reported", rows[2][3])
}
