package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llamachat/internal/common/fsutil"
	"llamachat/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the root logger. It writes to lc.File when set and to
// fallback otherwise.
func newLogger(lc config.LoggingConfig, fallback io.Writer) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logging.level: %w", err)
	}
	out, closer := fallback, io.Closer(nopCloser{})
	if lc.File != "" {
		path, err := fsutil.ExpandHome(lc.File)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		if err := fsutil.EnsureParentDir(path); err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	if strings.EqualFold(lc.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: lc.File != ""}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closer, nil
}
