package review

import "time"

type FindingStatus string

const (
	StatusPending                 FindingStatus = "PENDING"
	StatusAccepted                FindingStatus = "ACCEPTED"
	StatusResolvedAppliedFallback FindingStatus = "RESOLVED_APPLIED_FALLBACK"
	StatusResolvedManualEdit      FindingStatus = "RESOLVED_MANUAL_EDIT"
	StatusEscalated               FindingStatus = "ESCALATED"
)

// Resolved reports whether the status counts towards a resolved clause.
func (s FindingStatus) Resolved() bool {
	switch s {
	case StatusAccepted, StatusResolvedAppliedFallback, StatusResolvedManualEdit:
		return true
	default:
		return false
	}
}

type Escalation struct {
	DecisionID   string    `json:"decisionId"`
	FindingID    string    `json:"findingId"`
	AssigneeID   string    `json:"assigneeId"`
	AssigneeName string    `json:"assigneeName"`
	Reason       string    `json:"reason"`
	Comment      string    `json:"comment,omitempty"`
	EscalatedBy  string    `json:"escalatedBy"`
	EscalatedAt  time.Time `json:"escalatedAt"`
}

type Note struct {
	DecisionID string    `json:"decisionId"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
}

// FindingState is the derived status of one finding. It is recomputed on
// every read and never stored.
type FindingState struct {
	FindingID    string        `json:"findingId"`
	Status       FindingStatus `json:"status"`
	Escalation   *Escalation   `json:"escalation,omitempty"`
	Notes        []Note        `json:"notes"`
	NoteCount    int           `json:"noteCount"`
	LastAction   ActionType    `json:"lastAction,omitempty"`
	LastActionAt *time.Time    `json:"lastActionAt,omitempty"`
}

// EscalatedTo returns the assignee currently routing the finding, if any.
func (s FindingState) EscalatedTo() string {
	if s.Status != StatusEscalated || s.Escalation == nil {
		return ""
	}
	return s.Escalation.AssigneeID
}

// Replay computes the state of one finding from its decisions. Decisions for
// other findings and legacy decisions are ignored. Only decisions after the
// last Revert count; undone decisions and the Undo/Revert events themselves
// are skipped. State changes are last-write-wins.
func Replay(findingID string, decisions []Decision, names map[string]string) FindingState {
	scoped := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.FindingID == findingID && findingID != "" {
			scoped = append(scoped, d)
		}
	}
	ordered := SortDecisions(scoped)
	undone := undoneSet(ordered)

	start := 0
	for i, d := range ordered {
		if d.Action() == ActionRevert {
			start = i + 1
		}
	}

	state := FindingState{
		FindingID: findingID,
		Status:    StatusPending,
		Notes:     []Note{},
	}
	for _, d := range ordered[start:] {
		if _, ok := undone[d.ID]; ok {
			continue
		}
		switch p := d.Payload.(type) {
		case Undo, Revert:
			continue
		case AddNote:
			state.Notes = append(state.Notes, Note{
				DecisionID: d.ID,
				Text:       p.NoteText,
				CreatedAt:  d.CreatedAt,
				AuthorID:   d.AuthorID,
				AuthorName: displayName(names, d.AuthorID),
			})
			state.NoteCount++
			continue
		case AcceptDeviation:
			state.Status = StatusAccepted
			state.Escalation = nil
		case ApplyFallback:
			state.Status = StatusResolvedAppliedFallback
			state.Escalation = nil
		case EditManual:
			state.Status = StatusResolvedManualEdit
			state.Escalation = nil
		case Escalate:
			state.Status = StatusEscalated
			state.Escalation = &Escalation{
				DecisionID:   d.ID,
				FindingID:    findingID,
				AssigneeID:   p.AssigneeID,
				AssigneeName: displayName(names, p.AssigneeID),
				Reason:       p.Reason,
				Comment:      p.Comment,
				EscalatedBy:  d.AuthorID,
				EscalatedAt:  d.CreatedAt,
			}
		default:
			continue
		}
		at := d.CreatedAt
		state.LastAction = d.Action()
		state.LastActionAt = &at
	}
	return state
}

func displayName(names map[string]string, userID string) string {
	if name, ok := names[userID]; ok && name != "" {
		return name
	}
	return userID
}
