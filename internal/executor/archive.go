package executor

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// zipIfHasFiles archives every regular file under dir into output, with
// paths relative to dir. It does nothing when dir is missing or holds no
// files, and reports whether an archive was written.
func zipIfHasFiles(dir, output string) (bool, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return false, nil
	}

	tmpPath := output + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return false, fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addToZip(zw, dir, path); err != nil {
			zw.Close()
			out.Close()
			os.Remove(tmpPath)
			return false, err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, output); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("failed to rename archive: %w", err)
	}
	return true, nil
}

func addToZip(zw *zip.Writer, dir, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header for %s: %w", rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", rel, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", rel, err)
	}
	return nil
}
