package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := openTestDB(t)

	g := causalgraph.New([]causalfactor.Factor{causalfactor.NewSingleton(0, 0.3)}, nil)
	if err := db.PutCheckpoint("snapshot-1", g, 5); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}

	got, rec, err := db.GetCheckpoint("snapshot-1")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if got == nil || rec == nil {
		t.Fatalf("expected checkpoint to be found")
	}
	if rec.Iteration != 5 {
		t.Fatalf("Iteration = %d, want 5", rec.Iteration)
	}
	if got.NrFactors() != 1 {
		t.Fatalf("restored graph has %d factors, want 1", got.NrFactors())
	}

	names, err := db.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(names) != 1 || names[0] != "snapshot-1" {
		t.Fatalf("ListCheckpoints() = %v", names)
	}
}

func TestGetCheckpointMissingReturnsNil(t *testing.T) {
	db := openTestDB(t)
	g, rec, err := db.GetCheckpoint("nonexistent")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if g != nil || rec != nil {
		t.Fatalf("expected nil result for missing checkpoint")
	}
}

func TestRunHistoryAppendAndPrune(t *testing.T) {
	db := openTestDB(t)

	old := RunRecord{Timestamp: time.Now().UTC().AddDate(0, 0, -60), RunID: "r1", Iteration: 1, LogLikelihood: -5}
	recent := RunRecord{Timestamp: time.Now().UTC(), RunID: "r1", Iteration: 2, LogLikelihood: -3}

	if err := db.AppendRun(old); err != nil {
		t.Fatalf("AppendRun(old): %v", err)
	}
	if err := db.AppendRun(recent); err != nil {
		t.Fatalf("AppendRun(recent): %v", err)
	}

	recs, err := db.ReadRuns()
	if err != nil {
		t.Fatalf("ReadRuns: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("ReadRuns() returned %d records, want 2", len(recs))
	}

	db.retentionDays = 30
	deleted, err := db.PruneOldRuns()
	if err != nil {
		t.Fatalf("PruneOldRuns: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("PruneOldRuns() deleted %d, want 1", deleted)
	}

	recs, err = db.ReadRuns()
	if err != nil {
		t.Fatalf("ReadRuns: %v", err)
	}
	if len(recs) != 1 || recs[0].Iteration != 2 {
		t.Fatalf("unexpected remaining records: %+v", recs)
	}
}
