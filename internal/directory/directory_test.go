package directory

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestCompareNatural(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"img2.jpg", "img10.jpg", -1},
		{"img10.jpg", "img2.jpg", 1},
		{"IMG1.jpg", "img1.jpg", 0},
		{"a.png", "B.png", -1},
		{"img01.jpg", "img1.jpg", 1},
		{"img", "img1", -1},
		{"photo 9", "photo 09", -1},
		{"x100y", "x100z", -1},
	}
	for _, tt := range tests {
		if got := CompareNatural(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareNatural(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func writeFiles(t *testing.T, dir string, files map[string]int) {
	t.Helper()
	base := time.Unix(1_700_000_000, 0)
	for name, size := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(time.Duration(size) * time.Minute)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestListerFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]int{
		"img10.jpg":   30,
		"img2.png":    10,
		"IMG1.webp":   20,
		"notes.txt":   5,
		".hidden.jpg": 1,
		"photo.heic":  40,
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		field, order string
		vips         bool
		want         []string
	}{
		{"name", "asc", false, []string{"IMG1.webp", "img2.png", "img10.jpg"}},
		{"name", "desc", false, []string{"img10.jpg", "img2.png", "IMG1.webp"}},
		{"size", "asc", false, []string{"img2.png", "IMG1.webp", "img10.jpg"}},
		{"date", "desc", false, []string{"img10.jpg", "IMG1.webp", "img2.png"}},
		{"bogus", "", false, []string{"IMG1.webp", "img2.png", "img10.jpg"}},
		{"name", "asc", true, []string{"IMG1.webp", "img2.png", "img10.jpg", "photo.heic"}},
	}

	for _, tt := range tests {
		t.Run(tt.field+"_"+tt.order, func(t *testing.T) {
			entries, err := NewLister(tt.field, tt.order, tt.vips).List(context.Background(), dir)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if got := names(entries); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("List() = %v, want %v", got, tt.want)
			}
			for i, e := range entries {
				if e.Ordinal != i {
					t.Errorf("%s ordinal = %d, want %d", e.Name, e.Ordinal, i)
				}
				if !filepath.IsAbs(e.Path) {
					t.Errorf("%s path %q is not absolute", e.Name, e.Path)
				}
			}
		})
	}
}

func TestListerErrors(t *testing.T) {
	l := NewLister("name", "asc", false)
	if _, err := l.List(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("List() of a missing directory succeeded")
	}

	file := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.List(context.Background(), file); err == nil {
		t.Error("List() of a file succeeded")
	}
}

func TestPaths(t *testing.T) {
	entries := []Entry{{Path: "/a/1.jpg"}, {Path: "/a/2.jpg"}}
	if got := Paths(entries); !reflect.DeepEqual(got, []string{"/a/1.jpg", "/a/2.jpg"}) {
		t.Errorf("Paths() = %v", got)
	}
}
