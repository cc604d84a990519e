// Package tail streams a growing log file.
package tail

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// PollInterval is how often the file is checked for new content
var PollInterval = 100 * time.Millisecond

// Follow writes the content of filePath to w, starting at offset, and keeps
// polling for appended content. It returns nil once finished reports true
// and everything written before that has been copied, or ctx.Err() when the
// context is cancelled. A file that does not exist yet is waited for.
func Follow(ctx context.Context, filePath string, offset int64, w io.Writer, finished func() bool) error {
	var file *os.File
	defer func() {
		if file != nil {
			file.Close()
		}
	}()

	buf := make([]byte, 4096)

	for {
		// checked before reading so the final read sees everything
		done := finished()

		if file == nil {
			f, err := os.Open(filePath)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			file = f
		}

		if file != nil {
			n, err := copyFrom(file, offset, buf, w)
			offset += n
			if err != nil {
				return err
			}
		}

		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// copyFrom copies everything from offset to the current end of file
func copyFrom(file *os.File, offset int64, buf []byte, w io.Writer) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	var total int64
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return total, writeErr
			}
			total += int64(n)
		}
		if err == io.EOF || n == 0 {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
