package fixture

import (
	"context"
	"errors"

	"redline/api/internal/review"
)

// Violation is a logged decision that intake would have refused.
type Violation struct {
	Decision review.Decision
	Reason   string
}

// Audit replays a clause log entry by entry and checks each author against
// the finding state that preceded their decision.
func (w *Workspace) Audit(ctx context.Context, clauseID string) ([]Violation, error) {
	records, err := w.ListDecisions(ctx, clauseID)
	if err != nil {
		return nil, err
	}
	decisions, err := review.DecodeRecords(records)
	if err != nil {
		return nil, err
	}
	ordered := review.SortDecisions(decisions)
	gate := review.NewGate(w)

	var violations []Violation
	for i, d := range ordered {
		if d.IsLegacy() {
			continue
		}
		prior := ordered[:i]
		if undo, ok := d.Payload.(review.Undo); ok {
			if err := review.ValidateUndo(prior, d.FindingID, undo); err != nil {
				violations = append(violations, Violation{Decision: d, Reason: err.Error()})
				continue
			}
		}
		state := review.Replay(d.FindingID, prior, nil)
		if err := gate.Authorize(ctx, d.AuthorID, state); err != nil {
			var denied *review.AuthorizationError
			if !errors.As(err, &denied) {
				return nil, err
			}
			violations = append(violations, Violation{Decision: d, Reason: denied.Reason})
		}
	}
	return violations, nil
}
