// Command replay rebuilds clause projections from a YAML decision-log fixture.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"redline/api/internal/diff"
	"redline/api/internal/fixture"
	"redline/api/internal/review"
	"redline/api/internal/users"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("replay", flag.ContinueOnError)
	flags.SetOutput(out)
	path := flags.String("fixture", "", "path to the YAML fixture")
	clauseID := flags.String("clause", "", "replay one clause instead of all")
	asJSON := flags.Bool("json", false, "print projections as JSON")
	audit := flags.Bool("audit", false, "list logged decisions intake would refuse")
	timeout := flags.Duration("diff-timeout", diff.DefaultTimeout, "tracked-change diff deadline")
	noColor := flags.Bool("no-color", false, "disable coloured output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-fixture is required")
	}
	if *noColor {
		color.NoColor = true
	}

	ws, err := fixture.Load(*path)
	if err != nil {
		return err
	}
	clauseIDs := ws.ClauseIDs()
	if *clauseID != "" {
		clauseIDs = []string{*clauseID}
	}

	projector := review.NewProjector(ws, users.NewDirectory(ws, 0), *timeout)
	projections := make([]review.Projection, 0, len(clauseIDs))
	for _, id := range clauseIDs {
		p, err := projector.Project(ctx, id)
		if err != nil {
			return fmt.Errorf("clause %s: %w", id, err)
		}
		projections = append(projections, p)
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if len(projections) == 1 {
			return enc.Encode(projections[0])
		}
		return enc.Encode(projections)
	}

	for _, p := range projections {
		printProjection(out, p)
		if *audit {
			violations, err := ws.Audit(ctx, p.ClauseID)
			if err != nil {
				return fmt.Errorf("audit %s: %w", p.ClauseID, err)
			}
			printViolations(out, violations)
		}
	}
	return nil
}

var (
	heading  = color.New(color.Bold)
	inserted = color.New(color.FgGreen)
	deleted  = color.New(color.FgRed, color.CrossedOut)
	warn     = color.New(color.FgYellow)
)

func statusColor(status review.ClauseStatus) *color.Color {
	switch status {
	case review.ClauseResolved, review.ClauseNoIssues:
		return color.New(color.FgGreen)
	case review.ClauseEscalated:
		return color.New(color.FgYellow)
	case review.ClausePartiallyResolved:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

func printProjection(out io.Writer, p review.Projection) {
	heading.Fprintf(out, "%s ", p.ClauseID)
	statusColor(p.Status).Fprintf(out, "%s", p.Status)
	fmt.Fprintf(out, "  %d/%d findings resolved, %d active decisions\n", p.ResolvedFindings, p.TotalFindings, p.ActiveDecisionCount)
	if p.LegacyDecisionCount > 0 {
		warn.Fprintf(out, "  %d legacy decisions ignored\n", p.LegacyDecisionCount)
	}
	if p.Escalation != nil {
		warn.Fprintf(out, "  escalated to %s: %s\n", p.Escalation.AssigneeName, p.Escalation.Reason)
	}

	ids := make([]string, 0, len(p.Findings))
	for id := range p.Findings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		state := p.Findings[id]
		fmt.Fprintf(out, "  - %-24s %s", id, state.Status)
		if state.NoteCount > 0 {
			fmt.Fprintf(out, " (%d notes)", state.NoteCount)
		}
		fmt.Fprintln(out)
	}

	if !diff.HasChanges(p.TrackedChanges) {
		fmt.Fprintf(out, "  %s\n  (no tracked changes)\n\n", p.EffectiveText)
		return
	}
	fmt.Fprint(out, "  ")
	for _, seg := range p.TrackedChanges {
		switch seg.Kind {
		case diff.Insert:
			inserted.Fprint(out, seg.Text)
		case diff.Delete:
			deleted.Fprint(out, seg.Text)
		default:
			fmt.Fprint(out, seg.Text)
		}
	}
	fmt.Fprint(out, "\n\n")
}

func printViolations(out io.Writer, violations []fixture.Violation) {
	if len(violations) == 0 {
		inserted.Fprintln(out, "  audit: every decision would be accepted")
		return
	}
	for _, v := range violations {
		deleted.Fprintf(out, "  audit: %s", v.Decision.ID)
		fmt.Fprintf(out, " %s by %s on %s: %s\n", v.Decision.Action(), v.Decision.AuthorID, v.Decision.FindingID, v.Reason)
	}
}
