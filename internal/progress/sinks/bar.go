package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/JakeFAU/webshot/internal/progress"
)

// bar is the subset of a terminal progress bar the sink drives.
type bar interface {
	Start(total int, title string) error
	Add(n int)
	SetTitle(title string)
	Stop() error
}

// BarSink renders a live progress bar and a final summary box.
type BarSink struct {
	mu     sync.Mutex
	out    io.Writer
	newBar func(io.Writer) bar
	active bar
	done   int
}

// NewBarSink renders to out, or stdout when out is nil.
func NewBarSink(out io.Writer) *BarSink {
	if out == nil {
		out = os.Stdout
	}
	return &BarSink{
		out:    out,
		newBar: func(w io.Writer) bar { return &ptermBar{w: w} },
	}
}

// Consume updates the bar from the batch.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if err := s.consumeEvent(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *BarSink) consumeEvent(evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.stop(); err != nil {
			return err
		}
		s.done = 0
		return s.start(evt.Total)
	case progress.StageTaskDone:
		if s.active == nil {
			if err := s.start(evt.Total); err != nil {
				return err
			}
		}
		if s.active == nil {
			return nil
		}
		if delta := evt.Completed - s.done; delta > 0 {
			s.active.Add(delta)
			s.done = evt.Completed
		}
		s.active.SetTitle(barTitle(evt.Succeeded, evt.Failed))
	case progress.StageRunDone:
		if err := s.stop(); err != nil {
			return err
		}
		if _, err := io.WriteString(s.out, renderSummary(evt)+"\n"); err != nil {
			return fmt.Errorf("write run summary: %w", err)
		}
	}
	return nil
}

func (s *BarSink) start(total int) error {
	if total <= 0 {
		return nil
	}
	b := s.newBar(s.out)
	if err := b.Start(total, barTitle(0, 0)); err != nil {
		return err
	}
	s.active = b
	return nil
}

func (s *BarSink) stop() error {
	if s.active == nil {
		return nil
	}
	b := s.active
	s.active = nil
	return b.Stop()
}

// Close stops a bar left running by an unfinished run.
func (s *BarSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop()
}

func barTitle(ok, failed int) string {
	return fmt.Sprintf("Capturing  ok %d  failed %d", ok, failed)
}

func renderSummary(evt progress.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Completed: %d/%d\n", evt.Succeeded+evt.Failed, evt.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", evt.Succeeded)
	fmt.Fprintf(&b, "Failed:    %d\n", evt.Failed)
	fmt.Fprintf(&b, "Elapsed:   %s", evt.Dur.Round(time.Millisecond))
	return pterm.DefaultBox.WithTitle("Screenshots").Sprint(b.String())
}

type ptermBar struct {
	w  io.Writer
	pb *pterm.ProgressbarPrinter
}

func (b *ptermBar) Start(total int, title string) error {
	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithWriter(b.w).
		Start()
	if err != nil {
		return fmt.Errorf("start progress bar: %w", err)
	}
	b.pb = pb
	return nil
}

func (b *ptermBar) Add(n int) {
	if b.pb != nil {
		b.pb.Add(n)
	}
}

func (b *ptermBar) SetTitle(title string) {
	if b.pb != nil {
		b.pb.UpdateTitle(title)
	}
}

func (b *ptermBar) Stop() error {
	if b.pb == nil {
		return nil
	}
	_, err := b.pb.Stop()
	b.pb = nil
	if err != nil {
		return fmt.Errorf("stop progress bar: %w", err)
	}
	return nil
}
