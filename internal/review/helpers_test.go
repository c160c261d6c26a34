package review

import (
	"fmt"
	"time"

	"redline/api/internal/store"
)

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// logBuilder appends decisions one second apart with increasing seq.
type logBuilder struct {
	clauseID  string
	decisions []Decision
}

func newLog(clauseID string) *logBuilder {
	return &logBuilder{clauseID: clauseID}
}

func (b *logBuilder) add(findingID, authorID string, payload Payload) Decision {
	n := len(b.decisions) + 1
	d := Decision{
		ID:        fmt.Sprintf("d%d", n),
		Seq:       int64(n),
		ClauseID:  b.clauseID,
		FindingID: findingID,
		AuthorID:  authorID,
		CreatedAt: baseTime.Add(time.Duration(n) * time.Second),
		Payload:   payload,
	}
	b.decisions = append(b.decisions, d)
	return d
}

func (b *logBuilder) all() []Decision {
	out := make([]Decision, len(b.decisions))
	copy(out, b.decisions)
	return out
}

func testClause(id, text string) store.Clause {
	return store.Clause{ID: id, AnalysisID: "ana-1", OriginalText: text, CreatedAt: baseTime, UpdatedAt: baseTime}
}

func testFindings(clauseID string, ids ...string) []store.Finding {
	findings := make([]store.Finding, 0, len(ids))
	for _, id := range ids {
		findings = append(findings, store.Finding{ID: id, ClauseID: clauseID, RiskLevel: "high", CreatedAt: baseTime})
	}
	return findings
}
