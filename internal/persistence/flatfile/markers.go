package flatfile

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"chestward.ai/internal/grid"
)

const markersFileName = "markers.txt"

var markersHeader = []string{
	"# chestward marker associations",
	"# Format: locationKey|id1,id2,... (display order, top line first)",
	"# locationKey = worldId:x,y,z",
	"",
}

// EncodeMarkerLine renders one location's identity list.
func EncodeMarkerLine(key string, ids []uuid.UUID) string {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = id.String()
	}
	return key + "|" + strings.Join(ss, ",")
}

// ParseMarkerLine decodes one association line, validating that the key is
// a well-formed position key.
func ParseMarkerLine(line string) (string, []uuid.UUID, error) {
	i := strings.IndexByte(line, '|')
	if i < 0 || strings.IndexByte(line[i+1:], '|') >= 0 {
		return "", nil, errors.New("want exactly 2 fields")
	}
	key := line[:i]
	if _, err := grid.ParseKey(key); err != nil {
		return "", nil, err
	}
	var ids []uuid.UUID
	for _, s := range strings.Split(line[i+1:], ",") {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return "", nil, errors.Wrap(err, "marker identity")
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil, errors.New("empty identity list")
	}
	return key, ids, nil
}

// MarkerFile persists the marker registry's association map.
type MarkerFile struct {
	path  string
	src   func() map[string][]uuid.UUID
	dirty atomic.Bool
	mu    sync.Mutex
}

func NewMarkerFile(dir string, src func() map[string][]uuid.UUID) *MarkerFile {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("flatfile: create data dir %s: %v", dir, err)
	}
	return &MarkerFile{path: filepath.Join(dir, markersFileName), src: src}
}

func (f *MarkerFile) Path() string { return f.path }

func (f *MarkerFile) MarkDirty() { f.dirty.Store(true) }

func (f *MarkerFile) Dirty() bool { return f.dirty.Load() }

// Flush follows the same dirty contract as LockFile.Flush.
func (f *MarkerFile) Flush(force bool) error {
	if !f.dirty.CompareAndSwap(true, false) && !force {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	m := f.src()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(markersHeader)+len(keys))
	lines = append(lines, markersHeader...)
	for _, k := range keys {
		if len(m[k]) == 0 {
			continue
		}
		lines = append(lines, EncodeMarkerLine(k, m[k]))
	}
	if err := writeLines(f.path, lines); err != nil {
		f.dirty.Store(true)
		return errors.Wrapf(err, "write %s", f.path)
	}
	return nil
}

// Load reads every parseable association. Missing file means fresh start.
func (f *MarkerFile) Load() (map[string][]uuid.UUID, error) {
	out := map[string][]uuid.UUID{}
	skipped := 0
	err := readLines(f.path, func(line string) {
		key, ids, err := ParseMarkerLine(line)
		if err != nil {
			skipped++
			log.Printf("flatfile: skipping marker record %q: %v", line, err)
			return
		}
		out[key] = ids
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("flatfile: loaded %d marker records, skipped %d malformed", len(out), skipped)
	}
	return out, nil
}
