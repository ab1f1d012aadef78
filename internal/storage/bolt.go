// Package storage — bolt.go
//
// bbolt-backed persistent storage for checkpointing causal factor graphs
// and EM run history.
//
// Schema (bbolt bucket layout):
//
//	/checkpoints
//	    key:   checkpoint name (operator-chosen string)
//	    value: JSON-encoded CheckpointRecord (graph text format + metadata)
//
//	/runs
//	    key:   RFC3339Nano timestamp + "_" + run ID  [monotonic, sortable]
//	    value: JSON-encoded RunRecord
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (bbolt does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Run records older than RetentionDays are pruned by PruneOldRuns;
//     Open does not prune. Checkpoints are never automatically pruned
//     (operator action required).
//
// Failure modes:
//   - Database file corruption: bbolt detects via CRC and returns an error
//     on Open(). The caller should refuse to start rather than proceed
//     against a possibly-inconsistent store.
//   - Disk full: Update() returns an error; callers should log it and keep
//     serving from in-memory state rather than crash.

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalgraph"
)

const (
	// DefaultDBPath is the default bbolt file location.
	DefaultDBPath = "/var/lib/causalbp/causalbp.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default run-record retention period.
	DefaultRetentionDays = 30

	bucketCheckpoints = "checkpoints"
	bucketRuns        = "runs"
	bucketMeta        = "meta"
)

// CheckpointRecord is the persisted form of a causal factor graph snapshot.
// Stored as JSON in the checkpoints bucket.
type CheckpointRecord struct {
	// Name is the operator-chosen checkpoint identifier (the bbolt key).
	Name string `json:"name"`

	// GraphText is the graph serialized in its canonical text format.
	GraphText string `json:"graph_text"`

	// Iteration is the EM round (or BP sweep count) this checkpoint was
	// taken at, for operator bookkeeping.
	Iteration int `json:"iteration"`

	// UpdatedAt is the timestamp of the last write to this checkpoint.
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRecord is a single EM-run history entry.
// Stored as JSON in the runs bucket.
type RunRecord struct {
	// Timestamp is when the round completed.
	Timestamp time.Time `json:"timestamp"`

	// RunID identifies the EM run this round belongs to.
	RunID string `json:"run_id"`

	// Iteration is the EM round number within the run.
	Iteration int `json:"iteration"`

	// LogLikelihood is the round's log-likelihood-ratio value.
	LogLikelihood float64 `json:"log_likelihood"`

	// Regressed reports whether this round's log-likelihood decreased
	// relative to the previous round (an EMRegression).
	Regressed bool `json:"regressed"`
}

// DB wraps a bbolt instance with typed accessors for checkpoint and run data.
type DB struct {
	db            *bolt.DB
	retentionDays int
	log           *zap.Logger
}

// Open opens (or creates) the bbolt database at the given path.
// Initialises all required buckets and verifies the schema version.
func Open(path string, retentionDays int, log *zap.Logger) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if log == nil {
		log = zap.NewNop()
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays, log: log}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketCheckpoints, bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, engine requires %q",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Checkpoint operations ────────────────────────────────────────────────────

// PutCheckpoint serializes g in its canonical text format and writes or
// updates the checkpoint record named name.
func (d *DB) PutCheckpoint(name string, g *causalgraph.Graph, iteration int) error {
	var buf bytes.Buffer
	if err := g.WriteTo(&buf); err != nil {
		return fmt.Errorf("PutCheckpoint: serialize graph: %w", err)
	}

	rec := CheckpointRecord{
		Name:      name,
		GraphText: buf.String(),
		Iteration: iteration,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("PutCheckpoint marshal: %w", err)
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		if err := b.Put([]byte(name), data); err != nil {
			return fmt.Errorf("PutCheckpoint bolt.Put: %w", err)
		}
		return nil
	})
}

// GetCheckpoint retrieves and parses the named checkpoint's graph.
// Returns (nil, nil, nil) if no checkpoint exists under that name.
func (d *DB) GetCheckpoint(name string) (*causalgraph.Graph, *CheckpointRecord, error) {
	var rec CheckpointRecord
	found := false

	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("GetCheckpoint(%q): %w", name, err)
	}
	if !found {
		return nil, nil, nil
	}

	g, err := causalgraph.ReadFrom(bytes.NewReader([]byte(rec.GraphText)), d.log)
	if err != nil {
		return nil, nil, fmt.Errorf("GetCheckpoint(%q): parse graph: %w", name, err)
	}
	return g, &rec, nil
}

// ListCheckpoints returns the names of all stored checkpoints.
func (d *DB) ListCheckpoints() ([]string, error) {
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCheckpoints))
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// ─── Run-history operations ───────────────────────────────────────────────────

func runKey(t time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), runID))
}

// AppendRun writes a new EM run-history record.
func (d *DB) AppendRun(rec RunRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("AppendRun marshal: %w", err)
	}

	key := runKey(rec.Timestamp, rec.RunID)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("AppendRun bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOldRuns deletes run records older than retentionDays. Returns the
// number of entries deleted.
func (d *DB) PruneOldRuns() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := runKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldRuns delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadRuns returns all run-history records in chronological order.
func (d *DB) ReadRuns() ([]RunRecord, error) {
	var records []RunRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		return b.ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}
