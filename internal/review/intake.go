package review

// ValidateUndo checks that an Undo recorded on findingID targets a live
// decision of that same finding. decisions is the clause log before the Undo
// is appended.
func ValidateUndo(decisions []Decision, findingID string, u Undo) error {
	const field = "payload.undoneDecisionId"
	ordered := SortDecisions(decisions)

	targetIdx := -1
	for i, d := range ordered {
		if d.ID == u.UndoneDecisionID {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return invalid(field, "decision does not exist on this clause")
	}
	target := ordered[targetIdx]
	if target.FindingID != findingID {
		return invalid(field, "decision belongs to another finding")
	}
	if target.Action().IsControl() {
		return invalid(field, "undo and revert decisions cannot be undone")
	}
	if _, ok := undoneSet(ordered)[target.ID]; ok {
		return invalid(field, "decision is already undone")
	}
	for _, d := range ordered[targetIdx+1:] {
		if d.FindingID == findingID && d.Action() == ActionRevert {
			return invalid(field, "decision precedes a revert of the finding")
		}
	}
	return nil
}

// Visible returns the decisions a history listing shows: everything except
// decisions voided by an Undo, in log order. Legacy decisions and the Undo
// and Revert events themselves stay visible.
func Visible(decisions []Decision) []Decision {
	ordered := SortDecisions(decisions)
	undone := undoneSet(ordered)
	out := make([]Decision, 0, len(ordered))
	for _, d := range ordered {
		if _, ok := undone[d.ID]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}
