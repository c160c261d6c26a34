// Package fixture loads review workspaces described in YAML so decision logs
// can be replayed without a database.
package fixture

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"redline/api/internal/rbac"
	"redline/api/internal/store"
)

// DefaultEpoch is the timestamp of the first decision when the fixture sets none.
var DefaultEpoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role,omitempty"`
}

type Finding struct {
	ID            string `yaml:"id"`
	RiskLevel     string `yaml:"risk,omitempty"`
	MatchedRuleID string `yaml:"rule,omitempty"`
	SuggestedText string `yaml:"suggestedText,omitempty"`
	SourceExcerpt string `yaml:"excerpt,omitempty"`
}

// Decision is one log entry. An empty Finding is a legacy clause-scoped row.
type Decision struct {
	ID        string         `yaml:"id,omitempty"`
	Finding   string         `yaml:"finding,omitempty"`
	Author    string         `yaml:"author"`
	Action    string         `yaml:"action"`
	Payload   map[string]any `yaml:"payload,omitempty"`
	CreatedAt *time.Time     `yaml:"at,omitempty"`
}

type Clause struct {
	ID        string     `yaml:"id"`
	Text      string     `yaml:"text"`
	Findings  []Finding  `yaml:"findings"`
	Decisions []Decision `yaml:"decisions"`
}

// File is the root of a fixture document.
type File struct {
	Epoch   *time.Time `yaml:"epoch,omitempty"`
	Users   []User     `yaml:"users"`
	Clauses []Clause   `yaml:"clauses"`
}

// Workspace is a loaded fixture. It serves the same read interfaces as the
// PostgreSQL store.
type Workspace struct {
	users     map[string]store.User
	clauses   map[string]store.Clause
	order     []string
	findings  map[string][]store.Finding
	decisions map[string][]store.DecisionRecord
}

// Load reads and parses the fixture at path.
func Load(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture read: %w", err)
	}
	return Parse(data)
}

// Parse builds a workspace from fixture YAML.
func Parse(data []byte) (*Workspace, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fixture unmarshal: %w", err)
	}
	return f.Workspace()
}

// Workspace converts the document into stored rows. Decisions without an id
// or timestamp get sequential ones, one second apart.
func (f File) Workspace() (*Workspace, error) {
	epoch := DefaultEpoch
	if f.Epoch != nil {
		epoch = f.Epoch.UTC()
	}
	ws := &Workspace{
		users:     make(map[string]store.User, len(f.Users)),
		clauses:   make(map[string]store.Clause, len(f.Clauses)),
		findings:  make(map[string][]store.Finding, len(f.Clauses)),
		decisions: make(map[string][]store.DecisionRecord, len(f.Clauses)),
	}

	for _, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("fixture user %q: id is required", u.Name)
		}
		if _, dup := ws.users[u.ID]; dup {
			return nil, fmt.Errorf("fixture user %s: duplicate id", u.ID)
		}
		role := rbac.RoleViewer
		if u.Role != "" {
			if role = rbac.Normalize(u.Role); string(role) != u.Role {
				return nil, fmt.Errorf("fixture user %s: unknown role %q", u.ID, u.Role)
			}
		}
		ws.users[u.ID] = store.User{ID: u.ID, DisplayName: u.Name, Role: string(role), CreatedAt: epoch}
	}

	var seq int64
	for _, c := range f.Clauses {
		if c.ID == "" {
			return nil, fmt.Errorf("fixture clause: id is required")
		}
		if _, dup := ws.clauses[c.ID]; dup {
			return nil, fmt.Errorf("fixture clause %s: duplicate id", c.ID)
		}
		clause := store.Clause{
			ID:           c.ID,
			AnalysisID:   "fixture",
			Position:     len(ws.order),
			OriginalText: c.Text,
			CreatedAt:    epoch,
			UpdatedAt:    epoch,
		}

		known := make(map[string]bool, len(c.Findings))
		findings := make([]store.Finding, 0, len(c.Findings))
		for _, fd := range c.Findings {
			if fd.ID == "" || known[fd.ID] {
				return nil, fmt.Errorf("fixture clause %s: finding id %q is empty or repeated", c.ID, fd.ID)
			}
			known[fd.ID] = true
			findings = append(findings, store.Finding{
				ID:            fd.ID,
				ClauseID:      c.ID,
				RiskLevel:     fd.RiskLevel,
				MatchedRuleID: fd.MatchedRuleID,
				SuggestedText: fd.SuggestedText,
				SourceExcerpt: fd.SourceExcerpt,
				CreatedAt:     epoch,
			})
		}

		records := make([]store.DecisionRecord, 0, len(c.Decisions))
		for i, d := range c.Decisions {
			seq++
			rec, err := d.record(c.ID, seq, epoch.Add(time.Duration(seq)*time.Second))
			if err != nil {
				return nil, fmt.Errorf("fixture clause %s decision %d: %w", c.ID, i+1, err)
			}
			if rec.FindingID != nil && !known[*rec.FindingID] {
				return nil, fmt.Errorf("fixture clause %s decision %d: unknown finding %s", c.ID, i+1, *rec.FindingID)
			}
			if _, ok := ws.users[rec.AuthorID]; !ok {
				return nil, fmt.Errorf("fixture clause %s decision %d: unknown author %s", c.ID, i+1, rec.AuthorID)
			}
			records = append(records, rec)
			if rec.CreatedAt.After(clause.UpdatedAt) {
				clause.UpdatedAt = rec.CreatedAt
			}
		}

		ws.clauses[c.ID] = clause
		ws.order = append(ws.order, c.ID)
		ws.findings[c.ID] = findings
		ws.decisions[c.ID] = records
	}
	return ws, nil
}

func (d Decision) record(clauseID string, seq int64, at time.Time) (store.DecisionRecord, error) {
	if d.Action == "" {
		return store.DecisionRecord{}, fmt.Errorf("action is required")
	}
	payload := json.RawMessage(`{}`)
	if len(d.Payload) > 0 {
		raw, err := json.Marshal(d.Payload)
		if err != nil {
			return store.DecisionRecord{}, fmt.Errorf("encode payload: %w", err)
		}
		payload = raw
	}
	id := d.ID
	if id == "" {
		id = fmt.Sprintf("dec_%03d", seq)
	}
	if d.CreatedAt != nil {
		at = d.CreatedAt.UTC()
	}
	rec := store.DecisionRecord{
		ID:         id,
		Seq:        seq,
		ClauseID:   clauseID,
		AuthorID:   d.Author,
		ActionType: d.Action,
		Payload:    payload,
		CreatedAt:  at,
	}
	if d.Finding != "" {
		findingID := d.Finding
		rec.FindingID = &findingID
	}
	return rec, nil
}

// ClauseIDs lists clauses in fixture order.
func (w *Workspace) ClauseIDs() []string {
	return append([]string(nil), w.order...)
}

func (w *Workspace) GetClause(_ context.Context, clauseID string) (store.Clause, error) {
	clause, ok := w.clauses[clauseID]
	if !ok {
		return store.Clause{}, sql.ErrNoRows
	}
	return clause, nil
}

func (w *Workspace) ListFindings(_ context.Context, clauseID string) ([]store.Finding, error) {
	return append([]store.Finding(nil), w.findings[clauseID]...), nil
}

func (w *Workspace) ListDecisions(_ context.Context, clauseID string) ([]store.DecisionRecord, error) {
	return append([]store.DecisionRecord(nil), w.decisions[clauseID]...), nil
}

func (w *Workspace) ListUsersByIDs(_ context.Context, ids []string) ([]store.User, error) {
	users := make([]store.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := w.users[id]; ok {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (w *Workspace) UserRole(_ context.Context, userID string) (rbac.Role, error) {
	if u, ok := w.users[userID]; ok {
		return rbac.Normalize(u.Role), nil
	}
	return rbac.RoleViewer, nil
}
