package progress

import (
	"context"

	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Sink consumes batches of progress events. Batches from one Hub arrive in
// emission order on a single goroutine; implementations must honor ctx.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}

// Noop is a screenshot.Reporter that ignores every call.
type Noop struct{}

// TaskCompleted implements screenshot.Reporter.
func (Noop) TaskCompleted(screenshot.Progress) {}

// RunFinished implements screenshot.Reporter.
func (Noop) RunFinished(screenshot.Summary) {}
