package executor

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestZipIfHasFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "screenshots")
	writeFile(t, filepath.Join(src, "b.png"), "bbb")
	writeFile(t, filepath.Join(src, "nested", "a.png"), "aaa")
	out := filepath.Join(dir, "screenshots.zip")

	written, err := zipIfHasFiles(src, out)
	if err != nil {
		t.Fatalf("zipIfHasFiles failed: %v", err)
	}
	if !written {
		t.Fatal("expected archive to be written")
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp archive should not remain")
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer zr.Close()

	contents := map[string]string{}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[f.Name] = string(data)
	}

	if len(names) != 2 || names[0] != "b.png" || names[1] != "nested/a.png" {
		t.Errorf("unexpected entries: %v", names)
	}
	if contents["nested/a.png"] != "aaa" || contents["b.png"] != "bbb" {
		t.Errorf("unexpected contents: %v", contents)
	}
}

func TestZipIfHasFiles_Empty(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing directory", func(t *testing.T) {
		out := filepath.Join(dir, "videos.zip")
		written, err := zipIfHasFiles(filepath.Join(dir, "videos"), out)
		if err != nil || written {
			t.Fatalf("expected no archive, got written=%v err=%v", written, err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("archive should not exist")
		}
	})

	t.Run("only subdirectories", func(t *testing.T) {
		src := filepath.Join(dir, "screenshots")
		if err := os.MkdirAll(filepath.Join(src, "empty"), 0755); err != nil {
			t.Fatal(err)
		}
		out := filepath.Join(dir, "screenshots.zip")
		written, err := zipIfHasFiles(src, out)
		if err != nil || written {
			t.Fatalf("expected no archive, got written=%v err=%v", written, err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("archive should not exist")
		}
	})
}
