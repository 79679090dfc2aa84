package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
)

// CurrentVersion is the record layout written by this package.
const CurrentVersion = 1

// FileName is the checkpoint file kept inside every scope directory.
const FileName = "checkpoint.json"

// Record is the durable crawl progress of one tag
type Record struct {
	Version            int       `json:"version"`
	Tag                string    `json:"tag"`
	Collected          []string  `json:"collected"`
	LastProductivePage int       `json:"last_productive_page"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store persists records as JSON files, one per scope directory
type Store struct {
	logger logger.Logger
}

// NewStore creates a checkpoint store
func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{logger: log}
}

// Path returns the checkpoint file for a scope
func Path(scope string) string {
	return filepath.Join(scope, FileName)
}

// Load reads the record for scope. A missing checkpoint is not an error:
// it returns nil, nil.
func (s *Store) Load(scope string) (*Record, error) {
	path := Path(scope)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrorTypeStorage, "open checkpoint", err)
	}
	defer file.Close()

	var rec Record
	if err := json.NewDecoder(file).Decode(&rec); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "decode checkpoint "+path, err)
	}
	if rec.Version == 0 {
		rec.Version = CurrentVersion
	}
	if rec.Version > CurrentVersion {
		return nil, errs.New(errs.ErrorTypeStorage,
			fmt.Sprintf("checkpoint %s has version %d, newest supported is %d", path, rec.Version, CurrentVersion))
	}

	s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"tag":                  rec.Tag,
		"collected":            len(rec.Collected),
		"last_productive_page": rec.LastProductivePage,
		"updated_at":           rec.UpdatedAt,
	})

	return &rec, nil
}

// Save writes rec atomically: a crash leaves either the previous record or
// the new one on disk, never a partial file.
func (s *Store) Save(scope string, rec *Record) error {
	if err := os.MkdirAll(scope, 0755); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "create scope directory", err)
	}

	now := time.Now().UTC()
	rec.Version = CurrentVersion
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Collected == nil {
		rec.Collected = []string{}
	}

	path := Path(scope)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "create temporary checkpoint file", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeStorage, "encode checkpoint", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeStorage, "sync checkpoint file", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeStorage, "close checkpoint file", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errs.Wrap(errs.ErrorTypeStorage, "replace checkpoint file", err)
	}
	syncDir(scope)

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"tag":                  rec.Tag,
		"collected":            len(rec.Collected),
		"last_productive_page": rec.LastProductivePage,
	})

	return nil
}

// Delete removes the checkpoint for scope
func (s *Store) Delete(scope string) error {
	if err := os.Remove(Path(scope)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrorTypeStorage, "delete checkpoint", err)
	}
	s.logger.InfoWithFields("Checkpoint deleted", map[string]interface{}{"scope": scope})
	return nil
}

// Exists checks if a checkpoint file exists
func (s *Store) Exists(scope string) bool {
	_, err := os.Stat(Path(scope))
	return err == nil
}

// Backup copies the current checkpoint next to itself with a .backup suffix
func (s *Store) Backup(scope string) error {
	if !s.Exists(scope) {
		return nil
	}

	path := Path(scope)
	src, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "open checkpoint for backup", err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".backup")
	if err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "create backup file", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errs.Wrap(errs.ErrorTypeStorage, "copy checkpoint to backup", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return errs.Wrap(errs.ErrorTypeStorage, "sync backup file", err)
	}
	if err := dst.Close(); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "close backup file", err)
	}

	s.logger.Debug("Checkpoint backed up")
	return nil
}

// Info returns a summary of the checkpoint, or nil when none exists
func (s *Store) Info(scope string) (map[string]interface{}, error) {
	rec, err := s.Load(scope)
	if err != nil || rec == nil {
		return nil, err
	}

	info := map[string]interface{}{
		"tag":                  rec.Tag,
		"collected":            len(rec.Collected),
		"last_productive_page": rec.LastProductivePage,
		"created_at":           rec.CreatedAt,
		"updated_at":           rec.UpdatedAt,
		"age":                  time.Since(rec.UpdatedAt).Round(time.Second),
	}
	if n := len(rec.Collected); n > 0 {
		info["last_post"] = rec.Collected[n-1]
	}
	return info, nil
}

// syncDir flushes the directory entry of a rename where the platform allows it
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
