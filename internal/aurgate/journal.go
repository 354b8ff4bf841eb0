package aurgate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-json-experiment/json"
	"go.etcd.io/bbolt"
)

// journalBucket holds one record per installed archive, keyed by install time.
const journalBucket = "installs"

// JournalEntry records one archive handed to the package manager.
type JournalEntry struct {
	Pkgbase     string    `json:"pkgbase"`
	Split       string    `json:"split"`
	File        string    `json:"file"`
	Revision    string    `json:"revision"`
	Blake3      string    `json:"blake3"`
	Size        int64     `json:"size"`
	AsDeps      bool      `json:"asdeps"`
	InstalledAt time.Time `json:"installed_at"`
}

// Journal is the on-disk install history.
type Journal struct {
	db *bbolt.DB
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(journalBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record appends entries in one transaction.
func (j *Journal) Record(entries ...JournalEntry) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(journalBucket))
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			// Fixed-width UTC timestamps sort lexically; the sequence breaks ties.
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			key := fmt.Sprintf("%s/%020d", e.InstalledAt.UTC().Format("20060102T150405.000000000"), seq)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// History returns all entries, oldest first, optionally limited to one pkgbase.
func (j *Journal) History(pkgbase string) ([]JournalEntry, error) {
	var out []JournalEntry
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(journalBucket)).ForEach(func(_, v []byte) error {
			var e JournalEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if pkgbase == "" || e.Pkgbase == pkgbase {
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return out, nil
}

// PrintHistory writes one line per entry.
func PrintHistory(w io.Writer, entries []JournalEntry) {
	if len(entries) == 0 {
		cFprintln(w, colDim, "No installs recorded.")
		return
	}
	for _, e := range entries {
		kind := "explicit"
		if e.AsDeps {
			kind = "dependency"
		}
		cFprintf(w, colInfo, "%s", e.File)
		fmt.Fprintf(w, "  %s@%s  %s  %s  %s\n", e.Pkgbase, e.Revision, kind,
			humanize.Bytes(uint64(e.Size)), humanize.Time(e.InstalledAt))
		cFprintf(w, colDim, "    blake3 %s\n", e.Blake3)
	}
}
