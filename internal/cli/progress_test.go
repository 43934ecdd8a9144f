package cli

import (
	"bytes"
	"testing"

	"github.com/Veraticus/the-hours-must-flow/internal/engine"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
	"github.com/stretchr/testify/assert"
)

func TestRunProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewRunProgress(&buf)

	p.Update(engine.Progress{MeetingID: "m1", Action: router.ActionAutoPost, Done: 1, Total: 2})
	p.Update(engine.Progress{MeetingID: "m2", Action: router.ActionReview, Done: 2, Total: 2})
	p.Finish()

	assert.Contains(t, buf.String(), "2/2")
}

func TestRunProgress_FinishWithoutUpdates(t *testing.T) {
	var buf bytes.Buffer
	p := NewRunProgress(&buf)

	p.Finish()
	assert.Empty(t, buf.String())
}
