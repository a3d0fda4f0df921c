// Package utils provides logging setup and small shared helpers.
package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ParseLevel parses a textual log level into a slog level. WARNING is
// accepted as an alias for WARN.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LogConfig selects the destination, format and verbosity of the
// process-wide logger.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`

	// File receives the log output when set; stderr is used otherwise.
	File string `yaml:"file" json:"file"`

	// Rotation applies when File is set.
	Rotation *RotationConfig `yaml:"rotation,omitempty" json:"rotation,omitempty"`
}

var (
	componentMu     sync.RWMutex
	componentLevels = map[string]slog.Level{}
)

// SetComponentLevel overrides the minimum level for one component's
// logger, independent of the global level.
func SetComponentLevel(component string, level slog.Level) {
	componentMu.Lock()
	componentLevels[component] = level
	componentMu.Unlock()
}

// componentHandler filters records against per-component level
// overrides before delegating to the wrapped handler.
type componentHandler struct {
	slog.Handler
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	componentMu.RLock()
	min, ok := componentLevels[h.component]
	componentMu.RUnlock()
	if ok {
		return level >= min
	}
	return h.Handler.Enabled(ctx, level)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// NewComponentLogger returns a logger tagged with the component name.
// Component levels set via SetComponentLevel take precedence over the
// global level.
func NewComponentLogger(component string) *slog.Logger {
	h := &componentHandler{Handler: slog.Default().Handler(), component: component}
	return slog.New(h).With(slog.String("component", component))
}

// SetupLogging installs the process-wide slog handler from the config.
// The returned closer flushes and closes the log file when one was
// opened; it is a no-op for stderr logging.
func SetupLogging(cfg LogConfig) (func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	closer := func() error { return nil }

	if cfg.File != "" {
		if cfg.Rotation != nil {
			rc := *cfg.Rotation
			rc.Filename = cfg.File
			rotator, err := NewLogRotator(&rc)
			if err != nil {
				return nil, err
			}
			out = rotator
			closer = rotator.Close
		} else {
			file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			out = file
			closer = file.Close
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))

	return closer, nil
}

// FormatBytes renders a byte count as a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ParseBytes parses a human-readable byte count such as "5M" or
// "1.5GB". A bare number is taken as bytes.
func ParseBytes(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty size")
	}

	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'K':
			multiplier = 1 << 10
			s = s[:len(s)-1]
		case 'M':
			multiplier = 1 << 20
			s = s[:len(s)-1]
		case 'G':
			multiplier = 1 << 30
			s = s[:len(s)-1]
		case 'T':
			multiplier = 1 << 40
			s = s[:len(s)-1]
		case 'P':
			multiplier = 1 << 50
			s = s[:len(s)-1]
		}
	}

	var num float64
	if _, err := fmt.Sscanf(s, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	return int64(num * float64(multiplier)), nil
}
