package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID          string
	DisplayName string
	Email       string
	Role        string
	CreatedAt   time.Time
}

// Clause is a unit of review text produced by document analysis.
// OriginalText is set once; CurrentText is a display cache only.
type Clause struct {
	ID           string
	AnalysisID   string
	Position     int
	OriginalText string
	CurrentText  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Finding struct {
	ID            string
	ClauseID      string
	RiskLevel     string
	MatchedRuleID string
	SuggestedText string
	SourceExcerpt string
	CreatedAt     time.Time
}

// DecisionRecord is a stored decision row. A nil FindingID marks a legacy
// clause-scoped decision.
type DecisionRecord struct {
	ID         string
	Seq        int64
	ClauseID   string
	FindingID  *string
	AuthorID   string
	ActionType string
	Payload    json.RawMessage
	CreatedAt  time.Time
}
