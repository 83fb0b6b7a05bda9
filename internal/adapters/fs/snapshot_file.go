package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bft-labs/dcaledger/internal/domain"
	"github.com/bft-labs/dcaledger/internal/ports"
)

const snapshotFileName = "ledger.json"

// SnapshotFileRepository implements ports.Repository using a JSON file.
// Each Apply rewrites the whole snapshot, so it suits small ledgers; use
// the sqlite store when write cost must not grow with state size.
type SnapshotFileRepository struct {
	dir string

	mu     sync.Mutex
	cached *domain.Snapshot
}

// NewSnapshotFileRepository creates a new SnapshotFileRepository for the given directory.
func NewSnapshotFileRepository(dir string) *SnapshotFileRepository {
	return &SnapshotFileRepository{dir: dir}
}

// Load retrieves the last saved snapshot from disk.
// Returns an empty snapshot and nil error if no file exists.
func (r *SnapshotFileRepository) Load(ctx context.Context) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load()
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap.Clone(), nil
}

func (r *SnapshotFileRepository) load() (*domain.Snapshot, error) {
	if r.cached != nil {
		return r.cached, nil
	}

	snap := domain.NewSnapshot()
	if err := readJSON(r.Path(), &snap); err != nil {
		return nil, err
	}
	// A file written by hand may omit empty maps.
	snap.Apply(domain.Changeset{Meta: snap.Meta})
	if _, ok := snap.CumulativePrice[0]; !ok {
		snap.CumulativePrice[0] = domain.Amount{}
	}
	r.cached = &snap
	return r.cached, nil
}

// Apply folds the changeset into the stored snapshot and writes it back
// atomically. Events are not journaled.
func (r *SnapshotFileRepository) Apply(ctx context.Context, cs domain.Changeset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load()
	if err != nil {
		return err
	}
	next := snap.Clone()
	next.Apply(cs)
	if err := writeJSON(r.dir, r.Path(), next); err != nil {
		return err
	}
	r.cached = &next
	return nil
}

// Close drops the cached snapshot.
func (r *SnapshotFileRepository) Close() error {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	return nil
}

// Path returns the full path to the snapshot file.
func (r *SnapshotFileRepository) Path() string {
	return filepath.Join(r.dir, snapshotFileName)
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes v to path via a temp file and rename.
func writeJSON(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var _ ports.Repository = (*SnapshotFileRepository)(nil)
