package review

import (
	"fmt"
	"time"

	"redline/api/internal/diff"
	"redline/api/internal/store"
)

// TextSource names the decision whose replacement text is the clause's
// effective text.
type TextSource struct {
	DecisionID string     `json:"decisionId"`
	FindingID  string     `json:"findingId"`
	Action     ActionType `json:"action"`
}

// Projection is the effective state of a clause derived from its full
// decision log.
type Projection struct {
	ClauseID            string                  `json:"clauseId"`
	OriginalText        string                  `json:"originalText"`
	EffectiveText       string                  `json:"effectiveText"`
	EffectiveSource     *TextSource             `json:"effectiveSource,omitempty"`
	Status              ClauseStatus            `json:"status"`
	TrackedChanges      []diff.Segment          `json:"trackedChanges"`
	ActiveDecisionCount int                     `json:"activeDecisionCount"`
	LastDecisionAt      *time.Time              `json:"lastDecisionAt,omitempty"`
	// ClauseUpdatedAt is the version clients echo back as
	// clauseUpdatedAtWhenLoaded. Every append moves it, control events included.
	ClauseUpdatedAt     time.Time               `json:"clauseUpdatedAt"`
	Escalation          *Escalation             `json:"escalation,omitempty"`
	Findings            map[string]FindingState `json:"findings"`
	ResolvedFindings    int                     `json:"resolvedFindings"`
	TotalFindings       int                     `json:"totalFindings"`
	LegacyDecisionCount int                     `json:"legacyDecisionCount"`
}

type ProjectionInput struct {
	Clause    store.Clause
	Findings  []store.Finding
	Decisions []Decision
	// Names maps user ids to display names for assignees and note authors.
	Names       map[string]string
	DiffTimeout time.Duration
}

// BuildProjection derives the clause projection. It is a pure function of its
// input: the same log always yields the same projection.
func BuildProjection(in ProjectionInput) (Projection, error) {
	clauseID := in.Clause.ID
	known := make(map[string]struct{}, len(in.Findings))
	for _, f := range in.Findings {
		known[f.ID] = struct{}{}
	}

	ordered := SortDecisions(in.Decisions)
	scoped := make([]Decision, 0, len(ordered))
	legacy := 0
	for _, d := range ordered {
		if d.ClauseID != clauseID {
			return Projection{}, &IntegrityError{ClauseID: clauseID, DecisionID: d.ID, Err: fmt.Errorf("decision belongs to clause %s", d.ClauseID)}
		}
		if d.Payload == nil {
			return Projection{}, &IntegrityError{ClauseID: clauseID, DecisionID: d.ID, Err: fmt.Errorf("decision has no payload")}
		}
		if d.IsLegacy() {
			legacy++
			continue
		}
		if _, ok := known[d.FindingID]; !ok {
			return Projection{}, &IntegrityError{ClauseID: clauseID, DecisionID: d.ID, Err: fmt.Errorf("finding %s is not part of the clause", d.FindingID)}
		}
		scoped = append(scoped, d)
	}

	byFinding := make(map[string][]Decision, len(in.Findings))
	for _, d := range scoped {
		byFinding[d.FindingID] = append(byFinding[d.FindingID], d)
	}
	states := make(map[string]FindingState, len(in.Findings))
	resolved := 0
	for _, f := range in.Findings {
		state := Replay(f.ID, byFinding[f.ID], in.Names)
		states[f.ID] = state
		if state.Status.Resolved() {
			resolved++
		}
	}

	effective, source := effectiveText(in.Clause.OriginalText, scoped)

	timeout := in.DiffTimeout
	if timeout == 0 {
		timeout = diff.DefaultTimeout
	}

	projection := Projection{
		ClauseID:            clauseID,
		OriginalText:        in.Clause.OriginalText,
		ClauseUpdatedAt:     in.Clause.UpdatedAt,
		EffectiveText:       effective,
		EffectiveSource:     source,
		Status:              DeriveClauseStatus(states, len(in.Findings)),
		TrackedChanges:      diff.ComputeWithTimeout(in.Clause.OriginalText, effective, timeout),
		Findings:            states,
		ResolvedFindings:    resolved,
		TotalFindings:       len(in.Findings),
		LegacyDecisionCount: legacy,
		Escalation:          escalationSummary(scoped, states),
	}
	for _, d := range scoped {
		if d.Action().IsControl() {
			continue
		}
		projection.ActiveDecisionCount++
		at := d.CreatedAt
		projection.LastDecisionAt = &at
	}
	return projection, nil
}

// effectiveText picks the replacement of the chronologically last text edit
// across all findings that is neither undone nor before its finding's last
// revert. scoped must already be ordered.
func effectiveText(original string, scoped []Decision) (string, *TextSource) {
	undone := undoneSet(scoped)
	lastRevert := make(map[string]int)
	for i, d := range scoped {
		if d.Action() == ActionRevert {
			lastRevert[d.FindingID] = i
		}
	}

	text := original
	var source *TextSource
	for i, d := range scoped {
		if _, ok := undone[d.ID]; ok {
			continue
		}
		if r, ok := lastRevert[d.FindingID]; ok && i < r {
			continue
		}
		var replacement string
		switch p := d.Payload.(type) {
		case ApplyFallback:
			replacement = p.ReplacementText
		case EditManual:
			replacement = p.ReplacementText
		default:
			continue
		}
		text = replacement
		source = &TextSource{DecisionID: d.ID, FindingID: d.FindingID, Action: d.Action()}
	}
	return text, source
}

// escalationSummary reports the most recent escalation still in force. When
// several findings are escalated the later decision in log order wins.
func escalationSummary(scoped []Decision, states map[string]FindingState) *Escalation {
	for i := len(scoped) - 1; i >= 0; i-- {
		d := scoped[i]
		if d.Action() != ActionEscalate {
			continue
		}
		state, ok := states[d.FindingID]
		if !ok || state.Status != StatusEscalated || state.Escalation == nil {
			continue
		}
		if state.Escalation.DecisionID != d.ID {
			continue
		}
		summary := *state.Escalation
		return &summary
	}
	return nil
}

// ReferencedUserIDs lists, once each and in first-seen order, the users whose
// display names a projection needs: escalation assignees and note authors.
func ReferencedUserIDs(decisions []Decision) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, d := range SortDecisions(decisions) {
		if d.IsLegacy() {
			continue
		}
		switch p := d.Payload.(type) {
		case Escalate:
			add(p.AssigneeID)
		case AddNote:
			add(d.AuthorID)
		}
	}
	return ids
}
