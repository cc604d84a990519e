package runstore

import (
	"errors"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juanibiapina/testrun/internal/logging"
)

var (
	ErrInvalidPath      = errors.New("invalid artifact path")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// reservedFiles are bookkeeping files that are not offered as artifacts
var reservedFiles = map[string]bool{
	statusFile:  true,
	summaryFile: true,
	logsFile:    true,
	junitFile:   true,
}

// contentTypes covers artifact extensions whose mime type is not reliably
// present in the host's mime tables.
var contentTypes = map[string]string{
	".zip":   "application/zip",
	".webm":  "video/webm",
	".mp4":   "video/mp4",
	".txt":   "text/plain; charset=utf-8",
	".log":   "text/plain; charset=utf-8",
	".har":   "application/json",
	".trace": "application/zip",
}

// Manifest lists a run's artifacts sorted by path
func (s *Store) Manifest(runID string) []Artifact {
	artifacts := []Artifact{}
	if !ValidRunID(runID) {
		return artifacts
	}

	dir := s.RunDir(runID)
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if reservedFiles[rel] || strings.HasSuffix(rel, tmpSuffix) {
			return nil
		}
		artifacts = append(artifacts, Artifact{
			Name:        d.Name(),
			Path:        rel,
			DownloadURL: DownloadURL(runID, rel),
		})
		return nil
	})

	return artifacts
}

// DownloadURL returns the API path an artifact is served from
func DownloadURL(runID, rel string) string {
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return path.Join("/api/test-runs", url.PathEscape(runID), "artifacts") + "/" + strings.Join(segments, "/")
}

// ResolveArtifact maps a caller-supplied relative path to a file inside the
// run's directory.
//
// Absolute paths and parent segments are rejected before touching the
// filesystem. The candidate is then resolved through symlinks and must stay
// inside the resolved run directory and be a regular file.
func (s *Store) ResolveArtifact(runID, rel string) (string, error) {
	if !isSafeRelative(rel) {
		logging.Logger.Warn("rejected artifact path", "run_id", runID, "path", rel)
		return "", ErrInvalidPath
	}
	if !ValidRunID(runID) {
		return "", ErrRunNotFound
	}

	dir, err := filepath.Abs(s.RunDir(runID))
	if err != nil {
		return "", ErrRunNotFound
	}
	dir, err = filepath.EvalSymlinks(dir)
	if err != nil {
		return "", ErrRunNotFound
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", ErrRunNotFound
	}

	candidate, err := filepath.EvalSymlinks(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", ErrArtifactNotFound
	}
	if candidate != dir && !strings.HasPrefix(candidate, dir+string(filepath.Separator)) {
		logging.Logger.Warn("artifact path escapes run directory", "run_id", runID, "path", rel)
		return "", ErrInvalidPath
	}

	info, err := os.Stat(candidate)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrArtifactNotFound
	}
	return candidate, nil
}

func isSafeRelative(rel string) bool {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return false
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) || filepath.IsAbs(rel) {
		return false
	}
	for _, part := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}

// ContentType classifies a file by extension. Unknown extensions are
// served as opaque binary.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
