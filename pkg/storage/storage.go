package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/admitflow/admitflow/pkg/engine"
)

const timestampLayout = "20060102_150405"

// Store lays out run artifacts under a single root directory:
//
//	<root>/offers/<site>/<application>_<timestamp>.<ext>
//	<root>/offers/<site>/<application>_<timestamp>.json
//	<root>/logs/screenshots/<prefix>_<timestamp>.png
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// SaveOffer moves a completed download out of the browser's scratch
// directory into the offers tree, restoring the portal's suggested
// filename extension.
func (s *Store) SaveOffer(site, applicationID, srcPath, filename string) (string, error) {
	dir := filepath.Join(s.root, "offers", slug(site))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating offers dir: %w", err)
	}

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", slug(keyFor(applicationID)), time.Now().Format(timestampLayout), ext))

	if err := moveFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("storing offer: %w", err)
	}
	return dst, nil
}

// SaveMetadata writes the run record as a JSON sibling of the offer.
func (s *Store) SaveMetadata(site, applicationID string, meta engine.RunMetadata) (string, error) {
	dir := filepath.Join(s.root, "offers", slug(site))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating offers dir: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", slug(keyFor(applicationID)), time.Now().Format(timestampLayout)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}
	return path, nil
}

// SaveScreenshot persists an audit capture under the logs tree.
func (s *Store) SaveScreenshot(prefix string, png []byte) (string, error) {
	dir := filepath.Join(s.root, "logs", "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshots dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", slug(prefix), time.Now().Format(timestampLayout)))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}
	return path, nil
}

func keyFor(applicationID string) string {
	if applicationID == "" {
		return "unidentified"
	}
	return applicationID
}

// slug lowercases and collapses anything unsafe for a filename.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

// moveFile renames when possible and falls back to copy+remove when the
// source sits on another filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
