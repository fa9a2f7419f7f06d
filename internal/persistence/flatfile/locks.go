// Package flatfile is the durable store: line-oriented, versioned text
// encodings for the lock index and the marker association map, plus the
// dirty-tracking flush machinery. Each file is replaced wholesale on write;
// malformed lines are skipped on read so a damaged record never blocks
// startup.
package flatfile

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/lock"
)

const locksFileName = "locked_resources.txt"

var locksHeader = []string{
	"# chestward locked resources",
	"# Format: ownerId|ownerName|worldId|markerId|x,y,z;x,y,z",
	"# markerId is empty when no owner marker exists",
	"",
}

// EncodeLockLine renders r as one storage line. Positions are already
// sorted by construction, which keeps the output deterministic.
func EncodeLockLine(r *lock.Resource) string {
	coords := make([]string, len(r.Positions))
	for i, p := range r.Positions {
		coords[i] = p.Coords()
	}
	markerCol := ""
	if r.Marker != uuid.Nil {
		markerCol = r.Marker.String()
	}
	return strings.Join([]string{
		r.Owner.String(),
		r.OwnerName,
		r.World,
		markerCol,
		strings.Join(coords, ";"),
	}, "|")
}

// ParseLockLine decodes one storage line. The current schema has five
// columns; the legacy four-column variant (no marker column) still parses,
// with marker = none.
func ParseLockLine(line string) (*lock.Resource, error) {
	parts := strings.Split(line, "|")

	var markerCol, positionsCol string
	switch len(parts) {
	case 5:
		markerCol = parts[3]
		positionsCol = parts[4]
	case 4:
		positionsCol = parts[3]
	default:
		return nil, errors.Errorf("want 4 or 5 fields, got %d", len(parts))
	}

	owner, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, "owner id")
	}
	ownerName := parts[1]
	world := parts[2]

	marker := uuid.Nil
	if markerCol != "" && markerCol != "null" {
		marker, err = uuid.Parse(markerCol)
		if err != nil {
			return nil, errors.Wrap(err, "marker id")
		}
	}

	var positions []grid.Pos
	for _, c := range strings.Split(positionsCol, ";") {
		x, y, z, err := grid.ParseCoords(c)
		if err != nil {
			return nil, err
		}
		positions = append(positions, grid.Pos{World: world, X: x, Y: y, Z: z})
	}
	if len(positions) == 0 {
		return nil, errors.New("empty position set")
	}

	r := lock.NewResource(owner, ownerName, world, positions)
	r.Marker = marker
	return r, nil
}

// LockFile persists the lock index to one flat file inside the data dir.
type LockFile struct {
	path  string
	src   func() []*lock.Resource
	dirty atomic.Bool
	mu    sync.Mutex
}

// NewLockFile binds the file under dir to a snapshot source (typically
// Index.Snapshot). The data dir is created if missing.
func NewLockFile(dir string, src func() []*lock.Resource) *LockFile {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("flatfile: create data dir %s: %v", dir, err)
	}
	return &LockFile{path: filepath.Join(dir, locksFileName), src: src}
}

func (f *LockFile) Path() string { return f.path }

// MarkDirty arms the next flush. Safe from any goroutine.
func (f *LockFile) MarkDirty() { f.dirty.Store(true) }

func (f *LockFile) Dirty() bool { return f.dirty.Load() }

// Flush writes the current snapshot. Without force it is a no-op unless
// dirty; the flag is cleared only by a successful write and re-armed on
// failure so the next attempt retries.
func (f *LockFile) Flush(force bool) error {
	if !f.dirty.CompareAndSwap(true, false) && !force {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	rs := f.src()
	lines := make([]string, 0, len(locksHeader)+len(rs))
	lines = append(lines, locksHeader...)
	for _, r := range rs {
		lines = append(lines, EncodeLockLine(r))
	}
	if err := writeLines(f.path, lines); err != nil {
		f.dirty.Store(true)
		return errors.Wrapf(err, "write %s", f.path)
	}
	return nil
}

// Load reads every parseable record. A missing file means a fresh start;
// malformed lines are logged and skipped, never fatal.
func (f *LockFile) Load() ([]*lock.Resource, error) {
	var out []*lock.Resource
	skipped := 0
	err := readLines(f.path, func(line string) {
		r, err := ParseLockLine(line)
		if err != nil {
			skipped++
			log.Printf("flatfile: skipping lock record %q: %v", line, err)
			return
		}
		out = append(out, r)
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("flatfile: loaded %d lock records, skipped %d malformed", len(out), skipped)
	}
	return out, nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// readLines invokes fn for every non-blank, non-comment line. A missing
// file is not an error.
func readLines(path string, fn func(line string)) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
	return errors.Wrapf(sc.Err(), "read %s", path)
}
