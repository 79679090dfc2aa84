package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	errs "booruscraper/pkg/errors"
)

// Manager writes artifacts beneath a single root directory
type Manager struct {
	root        string
	metadataDir string

	mu      sync.Mutex
	written int
	bytes   int64
}

// NewManager creates the root directory if needed. metadataDir, when set,
// is a subdirectory of each scope that receives the metadata documents.
func NewManager(root, metadataDir string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "create output directory", err)
	}
	if metadataDir != "" && (filepath.IsAbs(metadataDir) || strings.Contains(filepath.Clean(metadataDir), "..")) {
		return nil, fmt.Errorf("metadata directory must be relative to the scope: %q", metadataDir)
	}

	return &Manager{root: filepath.Clean(root), metadataDir: metadataDir}, nil
}

// Root returns the output root
func (m *Manager) Root() string {
	return m.root
}

// Resolve maps a relative scope path to a directory under the root and
// refuses anything that would escape it.
func (m *Manager) Resolve(scope string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", fmt.Errorf("scope is required")
	}
	full := filepath.Clean(filepath.Join(m.root, scope))
	if !strings.HasPrefix(full, m.root+string(filepath.Separator)) {
		return "", fmt.Errorf("scope %q escapes output directory", scope)
	}
	return full, nil
}

// WriteMedia streams r into scopeDir/filename via a temp file and rename.
func (m *Manager) WriteMedia(scopeDir, filename string, r io.Reader) (int64, error) {
	path, err := m.target(scopeDir, filename)
	if err != nil {
		return 0, err
	}

	n, err := writeAtomic(path, func(w io.Writer) (int64, error) {
		return io.Copy(w, r)
	})
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.written++
	m.bytes += n
	m.mu.Unlock()
	return n, nil
}

// WriteMetadata stores doc as indented JSON named after the media stem
func (m *Manager) WriteMetadata(scopeDir, mediaFilename string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "marshal metadata", err)
	}

	dir := scopeDir
	if m.metadataDir != "" {
		dir = filepath.Join(scopeDir, m.metadataDir)
	}
	path, err := m.target(dir, MetadataName(mediaFilename))
	if err != nil {
		return err
	}

	_, err = writeAtomic(path, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	})
	return err
}

// MetadataPath returns where the metadata document for a media file lives
func (m *Manager) MetadataPath(scopeDir, mediaFilename string) string {
	dir := scopeDir
	if m.metadataDir != "" {
		dir = filepath.Join(scopeDir, m.metadataDir)
	}
	return filepath.Join(dir, MetadataName(mediaFilename))
}

// Exists checks if an artifact is already present
func (m *Manager) Exists(scopeDir, filename string) bool {
	_, err := os.Stat(filepath.Join(scopeDir, filename))
	return err == nil
}

// Stats returns the number of media files and bytes written by this manager
func (m *Manager) Stats() (files int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written, m.bytes
}

// MetadataName swaps the media extension for .json
func MetadataName(mediaFilename string) string {
	return strings.TrimSuffix(mediaFilename, filepath.Ext(mediaFilename)) + ".json"
}

func (m *Manager) target(dir, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid artifact name %q", filename)
	}
	clean := filepath.Clean(dir)
	if clean != m.root && !strings.HasPrefix(clean, m.root+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact directory %q is outside %q", dir, m.root)
	}
	if err := os.MkdirAll(clean, 0755); err != nil {
		return "", errs.Wrap(errs.ErrorTypeStorage, "create artifact directory", err)
	}
	return filepath.Join(clean, filename), nil
}

func writeAtomic(path string, fill func(io.Writer) (int64, error)) (int64, error) {
	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeStorage, "create temporary file", err)
	}

	n, err := fill(out)
	if err != nil {
		out.Close()
		os.Remove(tempFile)
		// source errors that already carry a type (a dropped download) keep it
		if errs.TypeOf(err) != errs.ErrorTypeUnknown {
			return 0, err
		}
		return 0, errs.Wrap(errs.ErrorTypeStorage, "write "+filepath.Base(path), err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempFile)
		return 0, errs.Wrap(errs.ErrorTypeStorage, "sync "+filepath.Base(path), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return 0, errs.Wrap(errs.ErrorTypeStorage, "close "+filepath.Base(path), err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return 0, errs.Wrap(errs.ErrorTypeStorage, "rename temporary file", err)
	}
	return n, nil
}
