package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig bounds the size and number of log files kept on disk.
type RotationConfig struct {
	// Filename is the active log file.
	Filename string `yaml:"-" json:"-"`

	// MaxSizeMB rotates the file once it would exceed this size.
	// Zero disables size-based rotation.
	MaxSizeMB int64 `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups caps the number of rotated files retained.
	// Zero retains all.
	MaxBackups int `yaml:"max_backups" json:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress" json:"compress"`
}

// LogRotator is an io.Writer that rotates its backing file when the
// configured size limit is reached. Rotated files are renamed with a
// UTC timestamp suffix and the oldest are pruned past MaxBackups.
type LogRotator struct {
	mu   sync.Mutex
	cfg  RotationConfig
	file *os.File
	size int64
}

// NewLogRotator opens the log file and returns a rotating writer.
func NewLogRotator(cfg *RotationConfig) (*LogRotator, error) {
	if cfg == nil || cfg.Filename == "" {
		return nil, fmt.Errorf("rotation requires a filename")
	}
	lr := &LogRotator{cfg: *cfg}
	if err := lr.open(); err != nil {
		return nil, err
	}
	return lr, nil
}

// Write appends to the active file, rotating first when the write
// would push it past the size limit.
func (lr *LogRotator) Write(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.cfg.MaxSizeMB > 0 && lr.size+int64(len(p)) >= lr.cfg.MaxSizeMB<<20 {
		if err := lr.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation failed: %w", err)
		}
	}

	n, err := lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

// Close closes the active file.
func (lr *LogRotator) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.file == nil {
		return nil
	}
	err := lr.file.Close()
	lr.file = nil
	return err
}

// Rotate forces an immediate rotation.
func (lr *LogRotator) Rotate() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.rotate()
}

func (lr *LogRotator) open() error {
	if err := os.MkdirAll(filepath.Dir(lr.cfg.Filename), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(lr.cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	lr.file = file
	lr.size = info.Size()
	return nil
}

func (lr *LogRotator) rotate() error {
	if lr.file != nil {
		if err := lr.file.Close(); err != nil {
			return err
		}
		lr.file = nil
	}

	backup := lr.backupName(time.Now().UTC())
	if err := os.Rename(lr.cfg.Filename, backup); err != nil && !os.IsNotExist(err) {
		return err
	}

	if lr.cfg.Compress {
		if err := compressFile(backup); err != nil {
			fmt.Fprintf(os.Stderr, "failed to compress %s: %v\n", backup, err)
		}
	}

	if err := lr.pruneBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune old logs: %v\n", err)
	}

	return lr.open()
}

func (lr *LogRotator) backupName(ts time.Time) string {
	dir := filepath.Dir(lr.cfg.Filename)
	base := filepath.Base(lr.cfg.Filename)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, ts.Format("2006-01-02T15-04-05"), ext))
}

func (lr *LogRotator) pruneBackups() error {
	if lr.cfg.MaxBackups <= 0 {
		return nil
	}

	dir := filepath.Dir(lr.cfg.Filename)
	base := filepath.Base(lr.cfg.Filename)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if name == base || !strings.HasPrefix(name, stem+"-") {
			continue
		}
		if strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".gz") {
			backups = append(backups, name)
		}
	}

	// Timestamped names sort oldest first.
	sort.Strings(backups)
	for len(backups) > lr.cfg.MaxBackups {
		if err := os.Remove(filepath.Join(dir, backups[0])); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old log %s: %v\n", backups[0], err)
		}
		backups = backups[1:]
	}
	return nil
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	src.Close()
	return os.Remove(filename)
}
