package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadStore keeps uploaded invoice images on the local filesystem under a
// single base directory. Stored names are random, so uploads with colliding
// filenames never overwrite each other.
type UploadStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewUploadStore creates the store and its base directory.
func NewUploadStore(baseDir string, logger *zap.Logger) (*UploadStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &UploadStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// BaseDir returns the directory uploads are stored under.
func (s *UploadStore) BaseDir() string {
	return s.baseDir
}

// Save writes content under a fresh random name with the given extension and
// returns the stored path.
func (s *UploadStore) Save(content []byte, ext string) (string, error) {
	name := uuid.NewString() + "." + strings.TrimPrefix(strings.ToLower(ext), ".")
	path := filepath.Join(s.baseDir, name)

	if err := os.WriteFile(path, content, 0644); err != nil {
		s.logger.Error("Failed to write upload",
			zap.String("path", path),
			zap.Error(err))
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	s.logger.Debug("Upload stored",
		zap.String("path", path),
		zap.Int("size", len(content)))

	return path, nil
}

// Delete removes a stored upload. A missing file is not an error: the record
// may have been created by a failed write or removed manually.
func (s *UploadStore) Delete(path string) error {
	if path == "" {
		return nil
	}

	if err := s.validatePath(path); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Error("Failed to delete upload",
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("failed to delete upload: %w", err)
	}

	return nil
}

// validatePath rejects paths escaping the base directory.
func (s *UploadStore) validatePath(path string) error {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path outside upload directory: %s", path)
	}

	return nil
}
