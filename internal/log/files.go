package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	filePrefix = "devicesync-"
	fileSuffix = ".log"
	dirMode    = 0o750
	fileMode   = 0o640
)

var ErrLogDir = errors.New("log directory error")

// OpenRunFile ensures dir exists, prunes log files older than retentionDays
// and opens a new log file named after now.
func OpenRunFile(dir string, retentionDays int, now time.Time) (*os.File, error) {
	created, err := ensureDir(dir)
	if err != nil {
		return nil, err
	}

	if created {
		slog.Info("created log directory", "dir", dir)
	} else {
		pruned, err := Prune(dir, now.AddDate(0, 0, -retentionDays))
		if err != nil {
			return nil, err
		}

		for _, path := range pruned {
			slog.Info("deleted expired log file", "path", path)
		}
	}

	name := filepath.Join(dir, filePrefix+now.Format("2006-01-02-150405")+fileSuffix)

	fh, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, errors.Wrap(ErrLogDir, err.Error())
	}

	return fh, nil
}

// Prune removes the regular log files in dir last modified at or before cutoff
// and returns their paths. Other files are left alone.
func Prune(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(ErrLogDir, err.Error())
	}

	var pruned []string

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isRunFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return pruned, errors.Wrap(ErrLogDir, err.Error())
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return pruned, errors.Wrap(ErrLogDir, err.Error())
		}

		pruned = append(pruned, path)
	}

	return pruned, nil
}

func isRunFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

func ensureDir(dir string) (created bool, err error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, errors.Wrap(ErrLogDir, dir+" is not a directory")
		}

		return false, nil
	}

	if !os.IsNotExist(err) {
		return false, errors.Wrap(ErrLogDir, err.Error())
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return false, errors.Wrap(ErrLogDir, err.Error())
	}

	return true, nil
}
