// Package history records every build attempt of a project in a BoltDB file
// kept in the project's cache directory.
//
// Records are keyed by start time so a cursor walks them chronologically.
// Captured engine output can be large, so it is stored zstd-compressed and
// only decompressed by Get.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
)

const (
	// FileName is the history database inside .build_cache
	FileName = "history.db"

	// bucketName is the BoltDB bucket name for build records
	bucketName = "builds"

	keyTimeLayout = "20060102T150405.000000000Z"
)

// ErrNotFound is returned by Get for an unknown build ID
var ErrNotFound = errors.New("build record not found")

// Record describes one build attempt
type Record struct {
	ID        string        `json:"id"`
	Project   string        `json:"project"`
	Mode      string        `json:"mode"`
	Reason    string        `json:"reason"`
	Success   bool          `json:"success"`
	Fallback  bool          `json:"fallback,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Hash      string        `json:"hash,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Error     string        `json:"error,omitempty"`

	// Output is the captured engine output. Only populated by Get.
	Output string `json:"-"`

	// CompressedOutput is the zstd form of Output as stored
	CompressedOutput []byte `json:"output_zst,omitempty"`
}

// History manages build records using BoltDB
type History struct {
	db *bbolt.DB

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the history database at path
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}

	return &History{db: db, encoder: encoder, decoder: decoder}, nil
}

// Close closes the history database
func (h *History) Close() error {
	h.decoder.Close()
	_ = h.encoder.Close()

	if h.db != nil {
		return h.db.Close()
	}

	return nil
}

// NewID returns a fresh build ID
func NewID() string {
	return uuid.NewString()
}

// Append stores a record, assigning an ID and start time when missing
func (h *History) Append(rec *Record) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}

	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	stored := *rec
	stored.CompressedOutput = nil
	if rec.Output != "" {
		stored.CompressedOutput = h.encoder.EncodeAll([]byte(rec.Output), nil)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	err = h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(recordKey(&stored), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store build record: %w", err)
	}

	return nil
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record. Output is left compressed.
func (h *History) List(limit int) ([]Record, error) {
	var records []Record

	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt build record %s: %w", k, err)
			}

			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Get returns one record with its output decompressed. The ID may be a
// unique prefix.
func (h *History) Get(id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var found *Record

	err := h.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}

			if len(rec.ID) < len(id) || rec.ID[:len(id)] != id {
				return nil
			}

			if found != nil {
				return fmt.Errorf("build id prefix %q is ambiguous", id)
			}

			found = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if len(found.CompressedOutput) > 0 {
		out, err := h.decoder.DecodeAll(found.CompressedOutput, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress build output: %w", err)
		}

		found.Output = string(out)
	}

	return found, nil
}

// Prune deletes all but the newest keep records and reports how many were
// removed. keep <= 0 disables pruning.
func (h *History) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	removed := 0

	err := h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		total := b.Stats().KeyN
		excess := total - keep
		if excess <= 0 {
			return nil
		}

		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, bytes.Clone(k))
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(stale)
		return nil
	})

	return removed, err
}

// Stats returns the number of stored records
func (h *History) Stats() (int, error) {
	var count int

	err := h.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})

	return count, err
}

// recordKey sorts chronologically; the ID breaks ties
func recordKey(rec *Record) []byte {
	return []byte(rec.StartedAt.UTC().Format(keyTimeLayout) + "/" + rec.ID)
}
