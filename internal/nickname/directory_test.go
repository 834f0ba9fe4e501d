package nickname_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/atlasbot/internal/nickname"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %q: %v", path, err)
	}
	return string(data)
}

const sampleFile = `{
  "336": ["bazett", "fragarach"],
  "2": ["saberface", "king"],
  "50": ["foo"],
  "12": ["king"]
}`

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	d, err := nickname.Load(filepath.Join(t.TempDir(), "nicknames.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nicknames.json")
	writeFile(t, path, `{"1": "not a list"}`)
	if _, err := nickname.Load(path); err == nil {
		t.Fatal("expected error for invalid directory file")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nicknames.json")
	writeFile(t, path, sampleFile)
	d, err := nickname.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		alias string
		want  string
		found bool
	}{
		{"foo", "50", true},
		{"bazett", "336", true},
		{"king", "2", true}, // listed under 2 and 12: smallest key wins
		{"Bazett", "", false},
		{"baz", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := d.Lookup(tc.alias)
		if ok != tc.found || got != tc.want {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tc.alias, got, ok, tc.want, tc.found)
		}
	}
}

func TestAliases_ReturnsCopy(t *testing.T) {
	t.Parallel()

	d := nickname.New("", map[string][]string{"336": {"bazett"}})
	got := d.Aliases("336")
	got[0] = "mutated"
	if d.Aliases("336")[0] != "bazett" {
		t.Fatal("Aliases returned shared slice")
	}
	if d.Aliases("999") != nil {
		t.Error("Aliases(unknown): want nil")
	}
}

func TestAdd_PersistsPrettyJSONInNumericOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nicknames.json")
	d, err := nickname.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, add := range []struct{ key, alias string }{
		{"336", "bazett"},
		{"10", "ten"},
		{"2", "saberface"},
		{"336", "fragarach"},
	} {
		if err := d.Add(add.key, add.alias); err != nil {
			t.Fatalf("Add(%q, %q): %v", add.key, add.alias, err)
		}
	}

	want := `{
  "2": [
    "saberface"
  ],
  "10": [
    "ten"
  ],
  "336": [
    "bazett",
    "fragarach"
  ]
}`
	if got := readFile(t, path); got != want {
		t.Errorf("file content:\n%s\nwant:\n%s", got, want)
	}

	reloaded, err := nickname.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !slices.Equal(reloaded.Aliases("336"), []string{"bazett", "fragarach"}) {
		t.Errorf("reloaded aliases = %v", reloaded.Aliases("336"))
	}
}

func TestAdd_Duplicate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nicknames.json")
	d := nickname.New(path, map[string][]string{"336": {"bazett"}})

	err := d.Add("336", "bazett")
	if !errors.Is(err, nickname.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("duplicate add must not write the file")
	}

	// The same alias under another key is allowed.
	if err := d.Add("337", "bazett"); err != nil {
		t.Fatalf("Add under other key: %v", err)
	}
}

func TestAdd_Validation(t *testing.T) {
	t.Parallel()

	d := nickname.New("", nil)
	if err := d.Add("abc", "x"); !errors.Is(err, nickname.ErrInvalidKey) {
		t.Errorf("Add(abc) err = %v, want ErrInvalidKey", err)
	}
	if err := d.Add("1", "   "); !errors.Is(err, nickname.ErrEmptyAlias) {
		t.Errorf("Add(blank) err = %v, want ErrEmptyAlias", err)
	}
	if err := d.Add(" 1 ", " the king "); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, ok := d.Lookup("the king"); !ok || got != "1" {
		t.Errorf("Lookup(trimmed) = %q, %v", got, ok)
	}
}

func TestAdd_WriteFailureRollsBack(t *testing.T) {
	t.Parallel()

	// A path below a regular file cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	writeFile(t, blocker, "")
	d := nickname.New(filepath.Join(blocker, "nicknames.json"), nil)

	if err := d.Add("1", "mash"); err == nil {
		t.Fatal("expected write error")
	}
	if _, ok := d.Lookup("mash"); ok {
		t.Error("failed Add left alias in memory")
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nicknames.json")
	writeFile(t, path, `{"1": ["mash"]}`)
	d, err := nickname.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed, err := d.Reload()
	if err != nil || changed {
		t.Fatalf("Reload unchanged = %v, %v; want false, nil", changed, err)
	}

	writeFile(t, path, `{"1": ["mash", "shielder"]}`)
	changed, err = d.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload changed = %v, %v; want true, nil", changed, err)
	}
	if key, ok := d.Lookup("shielder"); !ok || key != "1" {
		t.Errorf("Lookup(shielder) = %q, %v", key, ok)
	}

	writeFile(t, path, `{broken`)
	if _, err := d.Reload(); err == nil {
		t.Fatal("expected error for broken file")
	}
	if _, ok := d.Lookup("shielder"); !ok {
		t.Error("broken reload discarded previous directory")
	}
}
