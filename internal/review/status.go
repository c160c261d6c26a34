package review

type ClauseStatus string

const (
	ClauseNoIssues          ClauseStatus = "NO_ISSUES"
	ClausePending           ClauseStatus = "PENDING"
	ClausePartiallyResolved ClauseStatus = "PARTIALLY_RESOLVED"
	ClauseResolved          ClauseStatus = "RESOLVED"
	ClauseEscalated         ClauseStatus = "ESCALATED"
)

// DeriveClauseStatus aggregates finding states. Findings missing from the map
// count as pending. One escalated finding makes the whole clause escalated.
func DeriveClauseStatus(states map[string]FindingState, total int) ClauseStatus {
	if total == 0 {
		return ClauseNoIssues
	}
	resolved := 0
	for _, state := range states {
		if state.Status == StatusEscalated {
			return ClauseEscalated
		}
		if state.Status.Resolved() {
			resolved++
		}
	}
	switch {
	case resolved >= total:
		return ClauseResolved
	case resolved > 0:
		return ClausePartiallyResolved
	default:
		return ClausePending
	}
}
