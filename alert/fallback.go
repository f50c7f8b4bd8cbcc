package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/use-agent/haunt/models"
)

// Fallback produces the mechanical decision used whenever the AI evaluator
// is unconfigured or failing: alert on any non-empty change set. The engine
// must degrade to this rather than block on the collaborator.
func Fallback(changes models.ChangeSet) *Decision {
	if len(changes) == 0 {
		return &Decision{
			ShouldAlert: false,
			Reason:      "no fields changed",
			Confidence:  1,
			Summary:     "No change detected.",
		}
	}

	fields := changes.Fields()
	sort.Strings(fields)
	return &Decision{
		ShouldAlert: true,
		Reason:      "evaluator unavailable; alerting on any non-empty change set",
		Confidence:  0.5,
		Summary:     fmt.Sprintf("Changed fields: %s.", strings.Join(fields, ", ")),
	}
}

// Decide runs the evaluator and falls back to the mechanical decision on a
// nil evaluator or any evaluator error.
func Decide(ctx context.Context, ev Evaluator, evaluation *Evaluation) *Decision {
	if ev == nil {
		return Fallback(evaluation.ChangeSet)
	}
	decision, err := ev.Evaluate(ctx, evaluation)
	if err != nil {
		slog.Warn("alert: evaluator failed, using fallback decision", "error", err)
		return Fallback(evaluation.ChangeSet)
	}
	return decision
}
