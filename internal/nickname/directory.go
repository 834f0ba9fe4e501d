// Package nickname maintains the community alias directory: a JSON file
// mapping an entity identifier to the list of nicknames players use for it.
//
// The file is a single pretty-printed object, for example:
//
//	{
//	  "2": [
//	    "saberface"
//	  ],
//	  "336": [
//	    "bazett",
//	    "fragarach"
//	  ]
//	}
//
// Every successful [Directory.Add] rewrites the whole file. Keys are written
// in ascending numeric order.
package nickname

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrDuplicate is returned by [Directory.Add] when the alias is already
	// listed under the key.
	ErrDuplicate = errors.New("nickname: alias already exists")

	// ErrInvalidKey is returned by [Directory.Add] for keys that are not
	// integers.
	ErrInvalidKey = errors.New("nickname: key must be an integer")

	// ErrEmptyAlias is returned by [Directory.Add] for blank aliases.
	ErrEmptyAlias = errors.New("nickname: alias must not be empty")
)

// Directory is the in-memory alias directory backed by one file. It is safe
// for concurrent use.
type Directory struct {
	path string

	mu      sync.RWMutex
	entries map[string][]string
	hash    [sha256.Size]byte
}

// Load reads the directory at path. A missing file yields an empty directory
// that is created on the first [Directory.Add].
func Load(path string) (*Directory, error) {
	d := &Directory{path: path, entries: map[string][]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nickname: read %s: %w", path, err)
	}
	entries, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("nickname: parse %s: %w", path, err)
	}
	d.entries = entries
	d.hash = sha256.Sum256(data)
	return d, nil
}

// New returns an in-memory directory seeded with entries. Add persists to
// path when it is non-empty.
func New(path string, entries map[string][]string) *Directory {
	d := &Directory{path: path, entries: make(map[string][]string, len(entries))}
	for k, v := range entries {
		d.entries[k] = slices.Clone(v)
	}
	return d
}

// Path returns the backing file path.
func (d *Directory) Path() string { return d.path }

func decode(data []byte) (map[string][]string, error) {
	entries := map[string][]string{}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = map[string][]string{}
	}
	return entries, nil
}

// Lookup returns the key whose alias list contains alias. Matching is exact
// and case-sensitive. When several keys list the alias, the numerically
// smallest key wins.
func (d *Directory) Lookup(alias string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var (
		best  string
		found bool
	)
	for key, aliases := range d.entries {
		if !slices.Contains(aliases, alias) {
			continue
		}
		if !found || compareKeys(key, best) < 0 {
			best, found = key, true
		}
	}
	return best, found
}

// Aliases returns a copy of the aliases listed under key in insertion order.
func (d *Directory) Aliases(key string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.entries[key])
}

// Keys returns every key in ascending numeric order.
func (d *Directory) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedKeys(d.entries)
}

// Len returns the number of keys.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Add appends alias to the list under key and rewrites the file. Surrounding
// whitespace is trimmed from both. If the file cannot be written the
// in-memory directory is left unchanged.
func (d *Directory) Add(key, alias string) error {
	key = strings.TrimSpace(key)
	alias = strings.TrimSpace(alias)
	if _, err := strconv.Atoi(key); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if alias == "" {
		return ErrEmptyAlias
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, existed := d.entries[key]
	if slices.Contains(prev, alias) {
		return fmt.Errorf("%w: [%s: %q]", ErrDuplicate, key, alias)
	}

	next := append(slices.Clone(prev), alias)
	d.entries[key] = next

	if d.path == "" {
		return nil
	}
	if err := d.persistLocked(); err != nil {
		if existed {
			d.entries[key] = prev
		} else {
			delete(d.entries, key)
		}
		return err
	}
	return nil
}

// Reload re-reads the backing file and replaces the in-memory directory.
// It reports whether the content differed from what was last read or
// written. On error the current directory is kept.
func (d *Directory) Reload() (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, fmt.Errorf("nickname: reload %s: %w", d.path, err)
	}
	return d.replace(data)
}

// replace swaps in the directory encoded in data unless it matches the last
// known content.
func (d *Directory) replace(data []byte) (bool, error) {
	hash := sha256.Sum256(data)

	d.mu.RLock()
	same := hash == d.hash
	d.mu.RUnlock()
	if same {
		return false, nil
	}

	entries, err := decode(data)
	if err != nil {
		return false, fmt.Errorf("nickname: parse %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.entries = entries
	d.hash = hash
	d.mu.Unlock()
	return true, nil
}

// persistLocked writes the directory to a temporary file and renames it over
// the target. Must be called with d.mu held.
func (d *Directory) persistLocked() error {
	data, err := encode(d.entries)
	if err != nil {
		return fmt.Errorf("nickname: encode: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("nickname: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("nickname: write %s: %w", d.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("nickname: write %s: %w", d.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("nickname: write %s: %w", d.path, err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("nickname: write %s: %w", d.path, err)
	}
	d.hash = sha256.Sum256(data)
	return nil
}

// encode renders entries as a two-space indented object with keys in
// ascending numeric order.
func encode(entries map[string][]string) ([]byte, error) {
	if len(entries) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range sortedKeys(entries) {
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		aliases := entries[key]
		if aliases == nil {
			aliases = []string{}
		}
		v, err := json.MarshalIndent(aliases, "  ", "  ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func sortedKeys(entries map[string][]string) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// compareKeys orders integer keys numerically before any other key, and
// other keys lexically.
func compareKeys(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
