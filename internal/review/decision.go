package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"redline/api/internal/store"
)

type ActionType string

const (
	ActionAcceptDeviation ActionType = "ACCEPT_DEVIATION"
	ActionApplyFallback   ActionType = "APPLY_FALLBACK"
	ActionEditManual      ActionType = "EDIT_MANUAL"
	ActionEscalate        ActionType = "ESCALATE"
	ActionAddNote         ActionType = "ADD_NOTE"
	ActionUndo            ActionType = "UNDO"
	ActionRevert          ActionType = "REVERT"
)

// IsControl reports whether the action only steers replay (Undo, Revert)
// rather than changing finding state itself.
func (a ActionType) IsControl() bool {
	return a == ActionUndo || a == ActionRevert
}

// Payload is the closed set of decision variants. Each variant carries only
// the fields its action needs.
type Payload interface {
	Action() ActionType
	validate() error
}

type AcceptDeviation struct{}

type ApplyFallback struct {
	ReplacementText string `json:"replacementText"`
	Source          string `json:"source"`
	MatchedRuleID   string `json:"matchedRuleId,omitempty"`
}

type EditManual struct {
	ReplacementText string `json:"replacementText"`
}

type Escalate struct {
	Reason     string `json:"reason"`
	Comment    string `json:"comment,omitempty"`
	AssigneeID string `json:"assigneeId"`
}

type AddNote struct {
	NoteText string `json:"noteText"`
}

type Undo struct {
	UndoneDecisionID string `json:"undoneDecisionId"`
}

type Revert struct{}

func (AcceptDeviation) Action() ActionType { return ActionAcceptDeviation }
func (ApplyFallback) Action() ActionType   { return ActionApplyFallback }
func (EditManual) Action() ActionType      { return ActionEditManual }
func (Escalate) Action() ActionType        { return ActionEscalate }
func (AddNote) Action() ActionType         { return ActionAddNote }
func (Undo) Action() ActionType            { return ActionUndo }
func (Revert) Action() ActionType          { return ActionRevert }

func (AcceptDeviation) validate() error { return nil }
func (Revert) validate() error          { return nil }

func (p ApplyFallback) validate() error {
	if strings.TrimSpace(p.ReplacementText) == "" {
		return invalid("payload.replacementText", "is required")
	}
	if strings.TrimSpace(p.Source) == "" {
		return invalid("payload.source", "is required")
	}
	return nil
}

// EditManual may set an empty text; presence is checked when decoding.
func (EditManual) validate() error { return nil }

func (p Escalate) validate() error {
	if strings.TrimSpace(p.AssigneeID) == "" {
		return invalid("payload.assigneeId", "is required")
	}
	if strings.TrimSpace(p.Reason) == "" {
		return invalid("payload.reason", "is required")
	}
	return nil
}

func (p AddNote) validate() error {
	if strings.TrimSpace(p.NoteText) == "" {
		return invalid("payload.noteText", "is required")
	}
	return nil
}

func (p Undo) validate() error {
	if strings.TrimSpace(p.UndoneDecisionID) == "" {
		return invalid("payload.undoneDecisionId", "is required")
	}
	return nil
}

// Validate checks the required fields of a payload built in code.
func Validate(p Payload) error {
	if p == nil {
		return invalid("payload", "is required")
	}
	return p.validate()
}

// ParseActionType normalizes an action name from a request.
func ParseActionType(value string) (ActionType, error) {
	action := ActionType(strings.ToUpper(strings.TrimSpace(value)))
	switch action {
	case ActionAcceptDeviation, ActionApplyFallback, ActionEditManual, ActionEscalate,
		ActionAddNote, ActionUndo, ActionRevert:
		return action, nil
	case "":
		return "", invalid("actionType", "is required")
	default:
		return "", invalid("actionType", fmt.Sprintf("unknown action %q", value))
	}
}

// DecodePayload turns the JSON payload of an action into its variant.
// Unknown fields and missing required fields are rejected.
func DecodePayload(action ActionType, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch action {
	case ActionAcceptDeviation:
		var p AcceptDeviation
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case ActionApplyFallback:
		var p ApplyFallback
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case ActionEditManual:
		var wire struct {
			ReplacementText *string `json:"replacementText"`
		}
		if err := decodeStrict(raw, &wire); err != nil {
			return nil, err
		}
		if wire.ReplacementText == nil {
			return nil, invalid("payload.replacementText", "is required")
		}
		payload = EditManual{ReplacementText: *wire.ReplacementText}
	case ActionEscalate:
		var p Escalate
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case ActionAddNote:
		var p AddNote
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case ActionUndo:
		var p Undo
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case ActionRevert:
		var p Revert
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	default:
		return nil, invalid("actionType", fmt.Sprintf("unknown action %q", action))
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeStrict(raw json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return invalid("payload", err.Error())
	}
	return nil
}

// EncodePayload returns the stored form of a payload.
func EncodePayload(p Payload) (ActionType, json.RawMessage, error) {
	if err := Validate(p); err != nil {
		return "", nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s payload: %w", p.Action(), err)
	}
	return p.Action(), raw, nil
}

// Decision is one immutable entry of a clause's log. An empty FindingID marks
// a legacy clause-scoped decision, kept for history only.
type Decision struct {
	ID        string
	Seq       int64
	ClauseID  string
	FindingID string
	AuthorID  string
	CreatedAt time.Time
	Payload   Payload
}

func (d Decision) Action() ActionType {
	if d.Payload == nil {
		return ""
	}
	return d.Payload.Action()
}

func (d Decision) IsLegacy() bool {
	return d.FindingID == ""
}

// Before orders decisions by timestamp, then insertion order.
func (d Decision) Before(other Decision) bool {
	if !d.CreatedAt.Equal(other.CreatedAt) {
		return d.CreatedAt.Before(other.CreatedAt)
	}
	return d.Seq < other.Seq
}

// SortDecisions returns a copy ordered by (CreatedAt, Seq).
func SortDecisions(decisions []Decision) []Decision {
	ordered := make([]Decision, len(decisions))
	copy(ordered, decisions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})
	return ordered
}

// DecodeRecord converts a stored row. A row that does not decode is a data
// integrity fault, never a validation error.
func DecodeRecord(rec store.DecisionRecord) (Decision, error) {
	payload, err := DecodePayload(ActionType(rec.ActionType), rec.Payload)
	if err != nil {
		return Decision{}, &IntegrityError{ClauseID: rec.ClauseID, DecisionID: rec.ID, Err: err}
	}
	decision := Decision{
		ID:        rec.ID,
		Seq:       rec.Seq,
		ClauseID:  rec.ClauseID,
		AuthorID:  rec.AuthorID,
		CreatedAt: rec.CreatedAt,
		Payload:   payload,
	}
	if rec.FindingID != nil {
		decision.FindingID = *rec.FindingID
	}
	return decision, nil
}

// DecodeRecords decodes a clause log, failing on the first bad row.
func DecodeRecords(records []store.DecisionRecord) ([]Decision, error) {
	decisions := make([]Decision, 0, len(records))
	for _, rec := range records {
		decision, err := DecodeRecord(rec)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// undoneSet collects every decision id referenced by an Undo.
func undoneSet(decisions []Decision) map[string]struct{} {
	undone := make(map[string]struct{})
	for _, d := range decisions {
		if u, ok := d.Payload.(Undo); ok {
			undone[u.UndoneDecisionID] = struct{}{}
		}
	}
	return undone
}
