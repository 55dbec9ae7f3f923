package workflow

import (
	"context"

	"github.com/docsuite/docflow/internal/model"
)

// finalize is the terminal barrier: it waits for the (possibly extended)
// expected number of ProcessingComplete events, then stops the run with
// the full result sequence. Result order is barrier arrival order.
func (w *Workflow) finalize(_ context.Context, rc *RunContext, ev Event) error {
	events, err := rc.Collector(stepFinalize).Collect(ev, rc.Expected)
	if err != nil {
		return err
	}
	if events == nil {
		return nil
	}

	results := make([]model.ProcessingResult, 0, len(events))
	for _, collected := range events {
		results = append(results, collected.(ProcessingCompleteEvent).Result)
	}
	rc.Send(StopEvent{Results: results})
	return nil
}
