package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"run start", Event{TS: now, Stage: StageRunStart, Total: 3}, false},
		{"empty run", Event{TS: now, Stage: StageRunDone}, false},
		{"task done", Event{TS: now, Stage: StageTaskDone, Target: "a.com", Succeeded: 1, Total: 1}, false},
		{"missing ts", Event{Stage: StageRunStart}, true},
		{"unknown stage", Event{TS: now, Stage: "NOPE"}, true},
		{"task without target", Event{TS: now, Stage: StageTaskDone, Total: 1}, true},
		{"counts exceed total", Event{TS: now, Stage: StageRunDone, Succeeded: 2, Failed: 1, Total: 2}, true},
		{"negative duration", Event{TS: now, Stage: StageRunDone, Dur: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.evt.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
