// Package backup copies the task database to a user-visible folder. It is a
// best-effort startup hook: nothing else depends on it succeeding.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Copy writes src to dir/<base name of src>, replacing any previous copy.
func Copy(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	tmp, err := os.CreateTemp(dir, filepath.Base(src)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copying database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("moving backup into place: %w", err)
	}
	return dst, nil
}

// Run copies src into dir and logs the outcome. Failures are never returned.
func Run(logger *log.Logger, src, dir string) {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		logger.Warn("database file not found, skipping backup", "path", src)
		return
	}
	dst, err := Copy(src, dir)
	if err != nil {
		logger.Error("database backup failed", "err", err)
		return
	}
	logger.Info("database backed up", "path", dst)
}
