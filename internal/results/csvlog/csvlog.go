// Package csvlog writes one CSV row per capture result.
package csvlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Header is the first row of every log.
var Header = []string{"timestamp", "target", "target_type", "success", "error_message", "screenshot_path"}

// Sink writes records as CSV and flushes after every row.
type Sink struct {
	w      *csv.Writer
	closer io.Closer
}

// Create truncates or creates the file at path and writes the header.
func Create(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create csv log directory: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv log: %w", err)
	}
	s, err := New(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// New writes the header to w and returns a sink around it.
func New(w io.Writer) (*Sink, error) {
	s := &Sink{w: csv.NewWriter(w)}
	if err := s.writeRow(Header); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends rec.
func (s *Sink) Write(_ context.Context, rec screenshot.Record) error {
	return s.writeRow([]string{
		strconv.FormatInt(rec.Timestamp.Unix(), 10),
		rec.Target,
		string(rec.TargetKind),
		strconv.FormatBool(rec.Success),
		rec.Error,
		rec.ArtifactPath,
	})
}

func (s *Sink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file when Create opened it.
func (s *Sink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv log: %w", err)
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close csv log: %w", err)
	}
	return nil
}
