// Package export persists trained models to their configured target.
package export

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"digitforge/internal/model"
)

// Sink receives a trained model.
type Sink interface {
	Save(ctx context.Context, m *model.Model) error
	String() string
}

// FileSink writes models into a local directory.
type FileSink struct {
	Dir string
}

// ParseTarget resolves a save target. "file://./saved_model",
// "file:///abs/dir" and bare paths are accepted; other schemes are not.
func ParseTarget(target string) (FileSink, error) {
	if target == "" {
		return FileSink{}, fmt.Errorf("export: empty target")
	}
	if !strings.Contains(target, "://") {
		return FileSink{Dir: filepath.Clean(target)}, nil
	}
	scheme, rest, _ := strings.Cut(target, "://")
	if !strings.EqualFold(scheme, "file") {
		return FileSink{}, fmt.Errorf("export: unsupported scheme %q in %s", scheme, target)
	}
	path, err := url.PathUnescape(rest)
	if err != nil {
		return FileSink{}, fmt.Errorf("export: %s: %w", target, err)
	}
	if path == "" {
		return FileSink{}, fmt.Errorf("export: %s has no path", target)
	}
	return FileSink{Dir: filepath.Clean(path)}, nil
}

// Save implements Sink.
func (s FileSink) Save(ctx context.Context, m *model.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("export: nil model")
	}
	if err := m.Save(s.Dir); err != nil {
		return fmt.Errorf("export to %s: %w", s.Dir, err)
	}
	return nil
}

func (s FileSink) String() string { return "file://" + filepath.ToSlash(s.Dir) }
