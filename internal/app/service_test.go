package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"redline/api/internal/config"
	"redline/api/internal/projcache"
	"redline/api/internal/rbac"
	"redline/api/internal/review"
	"redline/api/internal/store"
)

var testEpoch = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeStore keeps clauses, findings and the decision log in memory. The func
// fields override individual operations.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	clauses   map[string]store.Clause
	findings  map[string][]store.Finding
	decisions map[string][]store.DecisionRecord
	seq       int64

	appendDecisionFn func(context.Context, store.DecisionRecord) (store.DecisionRecord, error)
	listDecisionsFn  func(context.Context, string) ([]store.DecisionRecord, error)
	pingFn           func(context.Context) error
	insertClauseFn   func(context.Context, store.Clause, []store.Finding) error

	listDecisionCalls int
	setCurrentText    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:          map[string]store.User{},
		clauses:        map[string]store.Clause{},
		findings:       map[string][]store.Finding{},
		decisions:      map[string][]store.DecisionRecord{},
		setCurrentText: map[string]string{},
	}
}

func (f *fakeStore) addUser(id, name string, role rbac.Role) {
	f.users[id] = store.User{ID: id, DisplayName: name, Role: string(role)}
}

func (f *fakeStore) addClause(id, text string, findingIDs ...string) {
	f.clauses[id] = store.Clause{ID: id, AnalysisID: "ana-1", OriginalText: text, CreatedAt: testEpoch, UpdatedAt: testEpoch}
	for _, fid := range findingIDs {
		f.findings[id] = append(f.findings[id], store.Finding{ID: fid, ClauseID: id, RiskLevel: "high"})
	}
}

func (f *fakeStore) GetClause(_ context.Context, clauseID string) (store.Clause, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clause, ok := f.clauses[clauseID]
	if !ok {
		return store.Clause{}, sql.ErrNoRows
	}
	return clause, nil
}

func (f *fakeStore) ListFindings(_ context.Context, clauseID string) ([]store.Finding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Finding(nil), f.findings[clauseID]...), nil
}

func (f *fakeStore) ListDecisions(ctx context.Context, clauseID string) ([]store.DecisionRecord, error) {
	f.mu.Lock()
	f.listDecisionCalls++
	fn := f.listDecisionsFn
	records := append([]store.DecisionRecord(nil), f.decisions[clauseID]...)
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, clauseID)
	}
	return records, nil
}

func (f *fakeStore) AppendDecision(ctx context.Context, rec store.DecisionRecord) (store.DecisionRecord, error) {
	if f.appendDecisionFn != nil {
		return f.appendDecisionFn(ctx, rec)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clause, ok := f.clauses[rec.ClauseID]
	if !ok {
		return store.DecisionRecord{}, sql.ErrNoRows
	}
	f.seq++
	rec.Seq = f.seq
	rec.CreatedAt = testEpoch.Add(time.Duration(f.seq) * time.Minute)
	f.decisions[rec.ClauseID] = append(f.decisions[rec.ClauseID], rec)
	clause.UpdatedAt = rec.CreatedAt
	f.clauses[rec.ClauseID] = clause
	return rec, nil
}

// seedDecision appends a stored row directly, bypassing intake.
func (f *fakeStore) seedDecision(clauseID, findingID, authorID, action, payload string) store.DecisionRecord {
	rec := store.DecisionRecord{
		ID:         "seed-" + action + "-" + findingID,
		ClauseID:   clauseID,
		AuthorID:   authorID,
		ActionType: action,
		Payload:    json.RawMessage(payload),
	}
	if findingID != "" {
		rec.FindingID = &findingID
	}
	out, _ := f.AppendDecision(context.Background(), rec)
	return out
}

func (f *fakeStore) SetClauseCurrentText(_ context.Context, clauseID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCurrentText[clauseID] = text
	return nil
}

func (f *fakeStore) UserRole(_ context.Context, userID string) (rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		return rbac.Normalize(user.Role), nil
	}
	return rbac.RoleViewer, nil
}

func (f *fakeStore) ListUsersByIDs(_ context.Context, ids []string) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeStore) EnsureUserByName(_ context.Context, name string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.DisplayName == name {
			return user, nil
		}
	}
	user := store.User{ID: "usr_" + name, DisplayName: name, Role: string(rbac.RoleReviewer)}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) SetUserRole(_ context.Context, userID string, role rbac.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.Role = string(role)
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CountClauses(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clauses), nil
}

func (f *fakeStore) InsertClauseWithFindings(ctx context.Context, clause store.Clause, findings []store.Finding) error {
	if f.insertClauseFn != nil {
		if err := f.insertClauseFn(ctx, clause, findings); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clause.CreatedAt = testEpoch
	clause.UpdatedAt = testEpoch
	f.clauses[clause.ID] = clause
	f.findings[clause.ID] = append([]store.Finding(nil), findings...)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) decisionCount(clauseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decisions[clauseID])
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	cache, err := projcache.NewMemory(16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	cfg := config.Config{JWTSecret: "test-secret", AccessTTL: time.Hour, DiffTimeout: time.Second}
	return New(cfg, fs, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// reviewFixture has clause c1 with findings f1 and f2, and users of every role.
func reviewFixture() *fakeStore {
	fs := newFakeStore()
	fs.addUser("u1", "Una", rbac.RoleReviewer)
	fs.addUser("u2", "Ugo", rbac.RoleApprover)
	fs.addUser("u3", "Uli", rbac.RoleApprover)
	fs.addUser("u4", "Val", rbac.RoleViewer)
	fs.addUser("adm", "Ada", rbac.RoleAdmin)
	fs.addClause("c1", "Liability is unlimited.", "f1", "f2")
	fs.addClause("c2", "Other clause.", "f9")
	return fs
}

func sessionFor(fs *fakeStore, userID string) Session {
	user := fs.users[userID]
	return Session{UserID: user.ID, UserName: user.DisplayName, Role: rbac.Normalize(user.Role)}
}

func submit(t *testing.T, svc *Service, session Session, findingID, action, payload string) (DecisionResult, error) {
	t.Helper()
	return svc.SubmitDecision(context.Background(), session, "c1", findingID, DecisionInput{
		ActionType: action,
		Payload:    json.RawMessage(payload),
	})
}

func mustSubmit(t *testing.T, svc *Service, session Session, findingID, action, payload string) DecisionResult {
	t.Helper()
	result, err := submit(t, svc, session, findingID, action, payload)
	if err != nil {
		t.Fatalf("submit %s: %v", action, err)
	}
	return result
}

func TestSubmitDecisionEscalationUndoScenario(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	u1, u2 := sessionFor(fs, "u1"), sessionFor(fs, "u2")

	escalated := mustSubmit(t, svc, u1, "f1", "ESCALATE", `{"assigneeId":"u2","reason":"liability cap"}`)
	state := escalated.Projection.Findings["f1"]
	if state.Status != review.StatusEscalated || state.Escalation.AssigneeID != "u2" || state.Escalation.AssigneeName != "Ugo" {
		t.Fatalf("expected escalation to u2, got %+v", state)
	}
	if escalated.Projection.Status != review.ClauseEscalated {
		t.Fatalf("expected escalated clause, got %s", escalated.Projection.Status)
	}

	resolved := mustSubmit(t, svc, u2, "f1", "APPLY_FALLBACK", `{"replacementText":"Liability capped at fees paid in 12 months.","source":"playbook"}`)
	if got := resolved.Projection.Findings["f1"]; got.Status != review.StatusResolvedAppliedFallback || got.Escalation != nil {
		t.Fatalf("expected resolved finding, got %+v", got)
	}
	if resolved.Projection.EffectiveText != "Liability capped at fees paid in 12 months." {
		t.Fatalf("unexpected effective text %q", resolved.Projection.EffectiveText)
	}
	if fs.setCurrentText["c1"] != resolved.Projection.EffectiveText {
		t.Fatalf("expected current text refreshed, got %q", fs.setCurrentText["c1"])
	}

	undone := mustSubmit(t, svc, u1, "f1", "UNDO", `{"undoneDecisionId":"`+resolved.Decision.ID+`"}`)
	state = undone.Projection.Findings["f1"]
	if state.Status != review.StatusEscalated || state.EscalatedTo() != "u2" {
		t.Fatalf("expected escalation restored, got %+v", state)
	}
	if undone.Projection.EffectiveText != "Liability is unlimited." {
		t.Fatalf("expected original text after undo, got %q", undone.Projection.EffectiveText)
	}
	if undone.Decision.AuthorName != "Una" || undone.Decision.ActionType != "UNDO" {
		t.Fatalf("unexpected decision view %+v", undone.Decision)
	}
}

func TestSubmitDecisionEscalationGate(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	mustSubmit(t, svc, sessionFor(fs, "u1"), "f1", "ESCALATE", `{"assigneeId":"u2","reason":"cap"}`)

	tests := []struct {
		name    string
		userID  string
		allowed bool
	}{
		{name: "original escalator", userID: "u1", allowed: false},
		{name: "other approver", userID: "u3", allowed: false},
		{name: "viewer", userID: "u4", allowed: false},
		{name: "assignee", userID: "u2", allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fs.decisionCount("c1")
			_, err := submit(t, svc, sessionFor(fs, tt.userID), "f1", "ADD_NOTE", `{"noteText":"looking"}`)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected allowed, got %v", err)
				}
				return
			}
			var denied *review.AuthorizationError
			if !errors.As(err, &denied) {
				t.Fatalf("expected authorization error, got %v", err)
			}
			if fs.decisionCount("c1") != before {
				t.Fatal("denied decision must not be appended")
			}
		})
	}

	if _, err := submit(t, svc, sessionFor(fs, "adm"), "f1", "ACCEPT_DEVIATION", `{}`); err != nil {
		t.Fatalf("expected admin to be allowed, got %v", err)
	}
}

func TestSubmitDecisionValidation(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	u1 := sessionFor(fs, "u1")
	other := mustSubmit(t, svc, u1, "f2", "ACCEPT_DEVIATION", `{}`)

	tests := []struct {
		name    string
		action  string
		payload string
	}{
		{name: "unknown action", action: "APPROVE", payload: `{}`},
		{name: "missing action", action: "", payload: `{}`},
		{name: "fallback without source", action: "APPLY_FALLBACK", payload: `{"replacementText":"x"}`},
		{name: "escalate without assignee", action: "ESCALATE", payload: `{"reason":"x"}`},
		{name: "unknown field", action: "ACCEPT_DEVIATION", payload: `{"note":"x"}`},
		{name: "undo missing target", action: "UNDO", payload: `{"undoneDecisionId":"dec_missing"}`},
		{name: "undo other finding", action: "UNDO", payload: `{"undoneDecisionId":"` + other.Decision.ID + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fs.decisionCount("c1")
			_, err := submit(t, svc, u1, "f1", tt.action, tt.payload)
			var verr *review.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if fs.decisionCount("c1") != before {
				t.Fatal("rejected decision must not be appended")
			}
		})
	}
}

func TestSubmitDecisionNotFound(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	u1 := sessionFor(fs, "u1")

	if _, err := svc.SubmitDecision(context.Background(), u1, "missing", "f1", DecisionInput{ActionType: "ACCEPT_DEVIATION"}); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("expected not found for clause, got %v", err)
	}
	if _, err := submit(t, svc, u1, "f9", "ACCEPT_DEVIATION", `{}`); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("expected not found for finding of another clause, got %v", err)
	}
}

func TestSubmitDecisionStoreFailureIsRetryable(t *testing.T) {
	fs := reviewFixture()
	fs.appendDecisionFn = func(context.Context, store.DecisionRecord) (store.DecisionRecord, error) {
		return store.DecisionRecord{}, errors.New("connection reset")
	}
	svc := newTestService(t, fs)

	_, err := submit(t, svc, sessionFor(fs, "u1"), "f1", "ACCEPT_DEVIATION", `{}`)
	var storeErr *review.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestSubmitDecisionConflictWarning(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	ctx := context.Background()
	u1, u2 := sessionFor(fs, "u1"), sessionFor(fs, "u2")

	loaded, err := svc.Projection(ctx, "c1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	loadedAt := loaded.ClauseUpdatedAt

	mustSubmit(t, svc, u2, "f2", "ACCEPT_DEVIATION", `{}`)

	result, err := svc.SubmitDecision(ctx, u1, "c1", "f1", DecisionInput{
		ActionType:                "EDIT_MANUAL",
		Payload:                   json.RawMessage(`{"replacementText":"Liability is capped."}`),
		ClauseUpdatedAtWhenLoaded: &loadedAt,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.ConflictWarning == nil {
		t.Fatal("expected conflict warning")
	}
	if !result.ConflictWarning.LoadedAt.Equal(loadedAt) {
		t.Fatalf("unexpected warning %+v", result.ConflictWarning)
	}
	if result.Projection.EffectiveText != "Liability is capped." || result.Projection.Status != review.ClauseResolved {
		t.Fatalf("decision must still be applied, got %+v", result.Projection)
	}

	// Control events move the clause version too; echoing the returned
	// version after an undo must not warn.
	undo := mustSubmit(t, svc, u1, "f1", "UNDO", `{"undoneDecisionId":"`+result.Decision.ID+`"}`)
	stored, _ := fs.GetClause(ctx, "c1")
	if !undo.Projection.ClauseUpdatedAt.Equal(stored.UpdatedAt) {
		t.Fatalf("expected projection to carry clause version %s, got %s", stored.UpdatedAt, undo.Projection.ClauseUpdatedAt)
	}
	freshAt := undo.Projection.ClauseUpdatedAt
	result, err = svc.SubmitDecision(ctx, u1, "c1", "f1", DecisionInput{
		ActionType:                "ADD_NOTE",
		Payload:                   json.RawMessage(`{"noteText":"done"}`),
		ClauseUpdatedAtWhenLoaded: &freshAt,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.ConflictWarning != nil {
		t.Fatalf("expected no warning for an up-to-date caller, got %+v", result.ConflictWarning)
	}

	cached, err := svc.Projection(ctx, "c1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if !cached.ClauseUpdatedAt.Equal(result.Projection.ClauseUpdatedAt) {
		t.Fatalf("expected cached projection at %s, got %s", result.Projection.ClauseUpdatedAt, cached.ClauseUpdatedAt)
	}
}

func TestProjectionIsCachedAndRefreshedOnAppend(t *testing.T) {
	fs := reviewFixture()
	svc := newTestService(t, fs)
	ctx := context.Background()

	first, err := svc.Projection(ctx, "c1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if _, err := svc.Projection(ctx, "c1"); err != nil {
		t.Fatalf("projection: %v", err)
	}
	if fs.listDecisionCalls != 1 {
		t.Fatalf("expected cached second read, got %d log reads", fs.listDecisionCalls)
	}
	if first.Status != review.ClausePending {
		t.Fatalf("expected pending, got %s", first.Status)
	}

	mustSubmit(t, svc, sessionFor(fs, "u1"), "f1", "ACCEPT_DEVIATION", `{}`)
	calls := fs.listDecisionCalls

	after, err := svc.Projection(ctx, "c1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if after.Status != review.ClausePartiallyResolved || after.ActiveDecisionCount != 1 {
		t.Fatalf("expected updated projection, got %s (%d)", after.Status, after.ActiveDecisionCount)
	}
	if fs.listDecisionCalls != calls {
		t.Fatal("expected projection rebuilt during intake to be served from cache")
	}
}

func TestProjectionIntegrityFault(t *testing.T) {
	fs := reviewFixture()
	fs.seedDecision("c1", "f1", "u1", "ESCALATE", `{"assigneeId":`)
	svc := newTestService(t, fs)

	_, err := svc.Projection(context.Background(), "c1")
	var integrity *review.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}

	_, err = submit(t, svc, sessionFor(fs, "u1"), "f1", "ACCEPT_DEVIATION", `{}`)
	if !errors.As(err, &integrity) {
		t.Fatalf("expected intake to refuse a corrupt log, got %v", err)
	}
}

func TestProjectionCountsLegacyDecisions(t *testing.T) {
	fs := reviewFixture()
	fs.seedDecision("c1", "", "u1", "EDIT_MANUAL", `{"replacementText":"legacy"}`)
	svc := newTestService(t, fs)

	p, err := svc.Projection(context.Background(), "c1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if p.LegacyDecisionCount != 1 || p.EffectiveText != "Liability is unlimited." {
		t.Fatalf("legacy decision must not be replayed: %+v", p)
	}
}

func TestDecisionHistory(t *testing.T) {
	fs := reviewFixture()
	legacy := fs.seedDecision("c1", "", "u3", "ACCEPT_DEVIATION", `{}`)
	svc := newTestService(t, fs)
	u1 := sessionFor(fs, "u1")

	edit := mustSubmit(t, svc, u1, "f1", "EDIT_MANUAL", `{"replacementText":"x"}`)
	mustSubmit(t, svc, u1, "f1", "UNDO", `{"undoneDecisionId":"`+edit.Decision.ID+`"}`)
	mustSubmit(t, svc, u1, "f2", "REVERT", `{}`)

	if _, err := svc.DecisionHistory(context.Background(), u1, "c1"); err == nil {
		t.Fatal("expected reviewer to be denied history")
	} else {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "FORBIDDEN" {
			t.Fatalf("expected FORBIDDEN, got %v", err)
		}
	}

	items, err := svc.DecisionHistory(context.Background(), sessionFor(fs, "u2"), "c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 visible decisions, got %d: %+v", len(items), items)
	}
	if items[0].ID != legacy.ID || !items[0].Legacy || items[0].AuthorName != "Uli" {
		t.Fatalf("unexpected legacy item %+v", items[0])
	}
	if items[1].ActionType != "UNDO" || items[2].ActionType != "REVERT" || items[1].AuthorName != "Una" {
		t.Fatalf("unexpected items %+v", items)
	}
	for _, item := range items {
		if item.ID == edit.Decision.ID {
			t.Fatal("undone decision must be hidden from history")
		}
	}

	if _, err := svc.DecisionHistory(context.Background(), sessionFor(fs, "u2"), "missing"); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBootstrapSeedsOnce(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(fs.clauses) != 1 || len(fs.findings["cls_demo_liability"]) != 2 {
		t.Fatalf("unexpected seed: %d clauses", len(fs.clauses))
	}
	avery, _ := fs.EnsureUserByName(ctx, "Avery")
	if avery.Role != string(rbac.RoleAdmin) {
		t.Fatalf("expected seeded admin, got %q", avery.Role)
	}
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if len(fs.users) != len(demoUsers) {
		t.Fatalf("expected bootstrap to be idempotent, got %d users", len(fs.users))
	}
}

func TestBootstrapRetriesAfterFailedSeed(t *testing.T) {
	fs := newFakeStore()
	fs.insertClauseFn = func(context.Context, store.Clause, []store.Finding) error {
		return errors.New("duplicate key value violates unique constraint")
	}
	svc := newTestService(t, fs)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err == nil {
		t.Fatal("expected bootstrap to fail")
	}
	if len(fs.clauses) != 0 {
		t.Fatalf("expected no partial clause, got %d", len(fs.clauses))
	}

	fs.insertClauseFn = nil
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("retry bootstrap: %v", err)
	}
	if len(fs.findings["cls_demo_liability"]) != 2 {
		t.Fatalf("expected both findings seeded on retry, got %d", len(fs.findings["cls_demo_liability"]))
	}
}

func TestLoginAndSessionRoundTrip(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(t, fs)

	session, err := svc.Login(context.Background(), "  Avery  ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.UserName != "Avery" || session.Role != rbac.RoleReviewer || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}

	_ = fs.SetUserRole(context.Background(), session.UserID, rbac.RoleApprover)
	restored, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if restored.UserID != session.UserID || restored.Role != rbac.RoleApprover {
		t.Fatalf("expected role read from store, got %+v", restored)
	}
}
