// Package textlog appends a human-readable session log: one "[unix] message"
// line per event, with separators marking each run.
package textlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/webshot/internal/clock/system"
	"github.com/JakeFAU/webshot/internal/screenshot"
)

var separator = strings.Repeat("=", 60)

// Sink writes session and per-target lines through a zap core.
type Sink struct {
	logger *zap.Logger
	close  func()
}

// Open appends to the log at path, creating it and its directory if needed.
func Open(path string, clock screenshot.Clock) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create text log directory: %w", err)
	}
	ws, closeFn, err := zap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text log: %w", err)
	}
	s := newSink(ws, clock)
	s.close = closeFn
	return s, nil
}

// New writes log lines to w.
func New(w io.Writer, clock screenshot.Clock) *Sink {
	return newSink(zapcore.AddSync(w), clock)
}

func newSink(ws zapcore.WriteSyncer, clock screenshot.Clock) *Sink {
	if clock == nil {
		clock = system.New()
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       unixBracketTime,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
	core := zapcore.NewCore(enc, ws, zapcore.InfoLevel)
	return &Sink{logger: zap.New(core, zap.WithClock(zapClock{clock}))}
}

func unixBracketTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + strconv.FormatInt(t.Unix(), 10) + "]")
}

// Begin marks the start of a session.
func (s *Sink) Begin(_ context.Context, _ string, total int) error {
	s.logger.Info("screenshot session started " + separator)
	s.logger.Info(fmt.Sprintf("starting capture, targets: %d", total))
	return s.sync()
}

// Write logs one target outcome.
func (s *Sink) Write(_ context.Context, rec screenshot.Record) error {
	if rec.Success {
		s.logger.Info("✓ captured: " + rec.Target)
	} else {
		s.logger.Info(fmt.Sprintf("✗ capture failed %s: %s", rec.Target, rec.Error))
	}
	return s.sync()
}

// End logs the final counts and closes the session with a blank line.
func (s *Sink) End(_ context.Context, _ string, summary screenshot.Summary) error {
	s.logger.Info(fmt.Sprintf("Completed! succeeded: %d, failed: %d", summary.Succeeded, summary.Failed))
	s.logger.Info("screenshot session ended " + separator)
	s.logger.Info("")
	return s.sync()
}

func (s *Sink) sync() error {
	if err := s.logger.Sync(); err != nil {
		return fmt.Errorf("sync text log: %w", err)
	}
	return nil
}

// Close flushes the log and releases the file opened by Open.
func (s *Sink) Close() error {
	err := s.sync()
	if s.close != nil {
		s.close()
	}
	return err
}

type zapClock struct {
	clock screenshot.Clock
}

func (c zapClock) Now() time.Time {
	return c.clock.Now()
}

func (c zapClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
