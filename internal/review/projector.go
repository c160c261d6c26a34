package review

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"redline/api/internal/store"
)

// Reader is the read side of the clause and decision store.
type Reader interface {
	GetClause(ctx context.Context, clauseID string) (store.Clause, error)
	ListFindings(ctx context.Context, clauseID string) ([]store.Finding, error)
	ListDecisions(ctx context.Context, clauseID string) ([]store.DecisionRecord, error)
}

// NameResolver resolves display names for a set of users in one batch.
type NameResolver interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Snapshot is everything loaded for one clause before any derivation.
type Snapshot struct {
	Clause    store.Clause
	Findings  []store.Finding
	Decisions []Decision
}

// Finding returns the finding with the given id, if it belongs to the clause.
func (s Snapshot) Finding(findingID string) (store.Finding, bool) {
	for _, f := range s.Findings {
		if f.ID == findingID {
			return f, true
		}
	}
	return store.Finding{}, false
}

type Projector struct {
	reader      Reader
	names       NameResolver
	diffTimeout time.Duration
}

func NewProjector(reader Reader, names NameResolver, diffTimeout time.Duration) *Projector {
	return &Projector{reader: reader, names: names, diffTimeout: diffTimeout}
}

// Load reads the clause, its findings and its entire decision log.
func (p *Projector) Load(ctx context.Context, clauseID string) (Snapshot, error) {
	clause, err := p.reader.GetClause(ctx, clauseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, &StoreError{Op: "get clause", Err: err}
	}
	findings, err := p.reader.ListFindings(ctx, clauseID)
	if err != nil {
		return Snapshot{}, &StoreError{Op: "list findings", Err: err}
	}
	records, err := p.reader.ListDecisions(ctx, clauseID)
	if err != nil {
		return Snapshot{}, &StoreError{Op: "list decisions", Err: err}
	}
	decisions, err := DecodeRecords(records)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Clause: clause, Findings: findings, Decisions: decisions}, nil
}

// Build resolves the display names the snapshot needs and derives the
// projection.
func (p *Projector) Build(ctx context.Context, snapshot Snapshot) (Projection, error) {
	names := map[string]string{}
	if ids := ReferencedUserIDs(snapshot.Decisions); len(ids) > 0 && p.names != nil {
		resolved, err := p.names.DisplayNames(ctx, ids)
		if err != nil {
			return Projection{}, &StoreError{Op: "resolve display names", Err: err}
		}
		names = resolved
	}
	return BuildProjection(ProjectionInput{
		Clause:      snapshot.Clause,
		Findings:    snapshot.Findings,
		Decisions:   snapshot.Decisions,
		Names:       names,
		DiffTimeout: p.diffTimeout,
	})
}

// Project loads and builds the projection for a clause.
func (p *Projector) Project(ctx context.Context, clauseID string) (Projection, error) {
	snapshot, err := p.Load(ctx, clauseID)
	if err != nil {
		return Projection{}, err
	}
	return p.Build(ctx, snapshot)
}
