// Package hospital provides the static hospital directory and its lookup.
//
// The directory is loaded once at startup and never modified afterwards, so
// a *Directory is safe for concurrent use without locking.
package hospital

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/NaijaCare/internal/models"
)

// MaxDisplayResults is the number of matches shown to a user for one query.
const MaxDisplayResults = 5

// Sentinel errors reported by the loaders. Both come with a usable, empty
// directory: missing data is never fatal.
var (
	ErrSourceMissing = errors.New("hospital directory source not found")
	ErrSourceCorrupt = errors.New("hospital directory source is malformed")
)

// Directory is an immutable, ordered list of hospital records.
type Directory struct {
	records []models.HospitalRecord
}

// NewDirectory builds a directory from records, preserving their order.
func NewDirectory(records []models.HospitalRecord) *Directory {
	cp := make([]models.HospitalRecord, len(records))
	copy(cp, records)
	return &Directory{records: cp}
}

// Empty returns a directory with no records.
func Empty() *Directory {
	return &Directory{}
}

// Len returns the number of records.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Search returns every record whose state equals state (case-insensitive) and
// whose area contains area (case-insensitive), in directory order. An empty
// result is a valid answer, not an error.
func (d *Directory) Search(state, area string) []models.HospitalRecord {
	if d == nil {
		return nil
	}
	state = strings.TrimSpace(state)
	area = strings.ToLower(strings.TrimSpace(area))

	var matches []models.HospitalRecord
	for _, r := range d.records {
		if !strings.EqualFold(strings.TrimSpace(r.State), state) {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Area), area) {
			continue
		}
		matches = append(matches, r)
	}
	slog.Debug("Directory.Search: completed", "state", state, "area", area, "matches", len(matches))
	return matches
}

// Decode reads a JSON array of hospital records. On malformed input it returns
// an empty directory together with an error wrapping ErrSourceCorrupt.
func Decode(r io.Reader) (*Directory, error) {
	var records []models.HospitalRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
	}
	return NewDirectory(records), nil
}

// LoadFile loads the directory from a JSON file. The returned directory is
// always non-nil; a missing file yields ErrSourceMissing and a malformed one
// yields ErrSourceCorrupt, both alongside an empty directory.
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return Empty(), fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}
	defer f.Close()

	dir, err := Decode(f)
	if err != nil {
		return dir, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("hospital.LoadFile: directory loaded", "path", path, "records", dir.Len())
	return dir, nil
}
