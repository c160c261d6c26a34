package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"redline/api/internal/auth"
	"redline/api/internal/config"
	"redline/api/internal/metrics"
	"redline/api/internal/projcache"
	"redline/api/internal/rbac"
	"redline/api/internal/review"
	"redline/api/internal/store"
	"redline/api/internal/users"
	"redline/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      rbac.Role
	JTI       string
	ExpiresAt time.Time
}

// DecisionInput is one decision request for a finding. The clause timestamp
// the caller saw is optional and only drives the conflict warning.
type DecisionInput struct {
	ActionType                string          `json:"actionType"`
	Payload                   json.RawMessage `json:"payload"`
	ClauseUpdatedAtWhenLoaded *time.Time      `json:"clauseUpdatedAtWhenLoaded,omitempty"`
}

// ConflictWarning reports that someone else changed the clause after the
// caller loaded it. The decision has still been recorded.
type ConflictWarning struct {
	Message         string    `json:"message"`
	ClauseUpdatedAt time.Time `json:"clauseUpdatedAt"`
	LoadedAt        time.Time `json:"loadedAt"`
}

type DecisionView struct {
	ID         string          `json:"id"`
	ClauseID   string          `json:"clauseId"`
	FindingID  *string         `json:"findingId"`
	AuthorID   string          `json:"authorId"`
	AuthorName string          `json:"authorName"`
	ActionType string          `json:"actionType"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
	Legacy     bool            `json:"legacy"`
}

type DecisionResult struct {
	Decision        DecisionView      `json:"decision"`
	Projection      review.Projection `json:"projection"`
	ConflictWarning *ConflictWarning  `json:"conflictWarning,omitempty"`
}

type dataStore interface {
	review.Reader
	review.RoleLookup
	users.Lookup
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SetUserRole(context.Context, string, rbac.Role) error
	AppendDecision(context.Context, store.DecisionRecord) (store.DecisionRecord, error)
	SetClauseCurrentText(context.Context, string, string) error
	CountClauses(context.Context) (int, error)
	InsertClauseWithFindings(context.Context, store.Clause, []store.Finding) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	cache     projcache.Cache
	directory *users.Directory
	projector *review.Projector
	gate      *review.Gate
	logger    *slog.Logger
}

func New(cfg config.Config, dataStore dataStore, cache projcache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	directory := users.NewDirectory(dataStore, users.DefaultWait)
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		cache:     cache,
		directory: directory,
		projector: review.NewProjector(dataStore, directory, cfg.DiffTimeout),
		gate:      review.NewGate(dataStore),
		logger:    logger,
	}
}

// Directory exposes the display-name directory for request middleware.
func (s *Service) Directory() *users.Directory {
	return s.directory
}

var demoUsers = []struct {
	Name string
	Role rbac.Role
}{
	{Name: "Avery", Role: rbac.RoleAdmin},
	{Name: "Blake", Role: rbac.RoleApprover},
	{Name: "Casey", Role: rbac.RoleReviewer},
	{Name: "Devon", Role: rbac.RoleViewer},
}

// Bootstrap seeds demo users and one reviewed clause into an empty database.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountClauses(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, seed := range demoUsers {
		user, err := s.store.EnsureUserByName(ctx, seed.Name)
		if err != nil {
			return err
		}
		if err := s.store.SetUserRole(ctx, user.ID, seed.Role); err != nil {
			return err
		}
	}

	clause := store.Clause{
		ID:           "cls_demo_liability",
		AnalysisID:   "ana_demo",
		Position:     1,
		OriginalText: "The Supplier's liability under this Agreement shall be unlimited, and A and B shall indemnify each other.",
	}
	findings := []store.Finding{
		{
			ID:            "fnd_demo_cap",
			ClauseID:      clause.ID,
			RiskLevel:     "high",
			MatchedRuleID: "liability-cap",
			SuggestedText: "The Supplier's liability under this Agreement shall be capped at the fees paid in the preceding 12 months.",
			SourceExcerpt: "liability under this Agreement shall be unlimited",
		},
		{
			ID:            "fnd_demo_indemnity",
			ClauseID:      clause.ID,
			RiskLevel:     "medium",
			MatchedRuleID: "mutual-indemnity",
			SuggestedText: "A shall indemnify B.",
			SourceExcerpt: "A and B shall indemnify each other",
		},
	}
	if err := s.store.InsertClauseWithFindings(ctx, clause, findings); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "seeded demo workspace", "clause_id", clause.ID, "users", len(demoUsers))
	return nil
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	claims := auth.NewClaims(user.ID, user.DisplayName, s.cfg.AccessTTL, time.Now())
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      rbac.Normalize(user.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      rbac.Normalize(user.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// Projection returns the clause projection, from the cache when possible.
func (s *Service) Projection(ctx context.Context, clauseID string) (review.Projection, error) {
	cached, ticket, ok := s.cache.Get(ctx, clauseID)
	if ok {
		return cached, nil
	}
	projection, err := s.project(ctx, clauseID)
	if err != nil {
		return review.Projection{}, err
	}
	s.cache.Put(ctx, clauseID, ticket, projection)
	return projection, nil
}

func (s *Service) project(ctx context.Context, clauseID string) (review.Projection, error) {
	started := time.Now()
	projection, err := s.projector.Project(ctx, clauseID)
	metrics.ProjectionBuildDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.logIntegrity(ctx, clauseID, err)
		return review.Projection{}, err
	}
	return projection, nil
}

func (s *Service) logIntegrity(ctx context.Context, clauseID string, err error) {
	var integrity *review.IntegrityError
	if !errors.As(err, &integrity) {
		return
	}
	metrics.IntegrityFaults.Inc()
	s.logger.ErrorContext(ctx, "decision log integrity fault",
		"clause_id", clauseID,
		"decision_id", integrity.DecisionID,
		"error", integrity.Err,
	)
}

// SubmitDecision validates, authorizes and appends one decision on a finding,
// then returns the decision with the clause projection that includes it.
func (s *Service) SubmitDecision(ctx context.Context, session Session, clauseID, findingID string, input DecisionInput) (DecisionResult, error) {
	action, err := review.ParseActionType(input.ActionType)
	if err != nil {
		metrics.DecisionsRejected.WithLabelValues("validation").Inc()
		return DecisionResult{}, err
	}
	payload, err := review.DecodePayload(action, input.Payload)
	if err != nil {
		metrics.DecisionsRejected.WithLabelValues("validation").Inc()
		return DecisionResult{}, err
	}

	snapshot, err := s.projector.Load(ctx, clauseID)
	if err != nil {
		s.logIntegrity(ctx, clauseID, err)
		return DecisionResult{}, err
	}
	if _, ok := snapshot.Finding(findingID); !ok {
		metrics.DecisionsRejected.WithLabelValues("not_found").Inc()
		return DecisionResult{}, fmt.Errorf("finding %s on clause %s: %w", findingID, clauseID, review.ErrNotFound)
	}
	if undo, ok := payload.(review.Undo); ok {
		if err := review.ValidateUndo(snapshot.Decisions, findingID, undo); err != nil {
			metrics.DecisionsRejected.WithLabelValues("validation").Inc()
			return DecisionResult{}, err
		}
	}

	current, err := s.projector.Build(ctx, snapshot)
	if err != nil {
		s.logIntegrity(ctx, clauseID, err)
		return DecisionResult{}, err
	}
	if err := s.gate.Authorize(ctx, session.UserID, current.Findings[findingID]); err != nil {
		var denied *review.AuthorizationError
		if errors.As(err, &denied) {
			metrics.DecisionsRejected.WithLabelValues("forbidden").Inc()
			s.logger.InfoContext(ctx, "decision denied",
				"clause_id", clauseID,
				"finding_id", findingID,
				"user_id", session.UserID,
				"reason", denied.Reason,
			)
		}
		return DecisionResult{}, err
	}

	_, raw, err := review.EncodePayload(payload)
	if err != nil {
		return DecisionResult{}, err
	}
	finding := findingID
	appended, err := s.store.AppendDecision(ctx, store.DecisionRecord{
		ID:         util.NewID("dec"),
		ClauseID:   clauseID,
		FindingID:  &finding,
		AuthorID:   session.UserID,
		ActionType: string(action),
		Payload:    raw,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DecisionResult{}, fmt.Errorf("clause %s: %w", clauseID, review.ErrNotFound)
		}
		return DecisionResult{}, &review.StoreError{Op: "append decision", Err: err}
	}
	metrics.DecisionsAppended.WithLabelValues(string(action)).Inc()

	if err := s.cache.Invalidate(ctx, clauseID); err != nil {
		s.logger.WarnContext(ctx, "projection cache invalidation failed", "clause_id", clauseID, "error", err)
	}

	projection, err := s.refreshProjection(ctx, snapshot, appended)
	if err != nil {
		return DecisionResult{}, err
	}
	if err := s.store.SetClauseCurrentText(ctx, clauseID, projection.EffectiveText); err != nil {
		s.logger.WarnContext(ctx, "clause current text not refreshed", "clause_id", clauseID, "error", err)
	}

	result := DecisionResult{
		Decision:   decisionView(appended, map[string]string{session.UserID: session.UserName}),
		Projection: projection,
	}
	if loaded := input.ClauseUpdatedAtWhenLoaded; loaded != nil && snapshot.Clause.UpdatedAt.After(*loaded) {
		metrics.ConflictWarnings.Inc()
		result.ConflictWarning = &ConflictWarning{
			Message:         "The clause was changed by someone else after you loaded it. Your decision was recorded; review the updated state.",
			ClauseUpdatedAt: snapshot.Clause.UpdatedAt,
			LoadedAt:        *loaded,
		}
		s.logger.InfoContext(ctx, "concurrent clause edit",
			"clause_id", clauseID,
			"finding_id", findingID,
			"user_id", session.UserID,
			"clause_updated_at", snapshot.Clause.UpdatedAt,
			"loaded_at", *loaded,
		)
	}
	return result, nil
}

// refreshProjection rebuilds from the full log so concurrent appends by
// others are included, and caches the result. If the reload fails the
// projection is built from the snapshot plus the new decision and not cached.
func (s *Service) refreshProjection(ctx context.Context, snapshot review.Snapshot, appended store.DecisionRecord) (review.Projection, error) {
	_, ticket, _ := s.cache.Get(ctx, snapshot.Clause.ID)
	projection, err := s.project(ctx, snapshot.Clause.ID)
	if err == nil {
		s.cache.Put(ctx, snapshot.Clause.ID, ticket, projection)
		return projection, nil
	}
	var storeErr *review.StoreError
	if !errors.As(err, &storeErr) {
		return review.Projection{}, err
	}
	s.logger.WarnContext(ctx, "projection reload after append failed", "clause_id", snapshot.Clause.ID, "error", err)

	decision, err := review.DecodeRecord(appended)
	if err != nil {
		return review.Projection{}, err
	}
	next := snapshot
	if appended.CreatedAt.After(next.Clause.UpdatedAt) {
		next.Clause.UpdatedAt = appended.CreatedAt
	}
	next.Decisions = append(append([]review.Decision(nil), snapshot.Decisions...), decision)
	return s.projector.Build(ctx, next)
}

// DecisionHistory lists the clause log without undone decisions, oldest
// first, with author names resolved in one batch.
func (s *Service) DecisionHistory(ctx context.Context, session Session, clauseID string) ([]DecisionView, error) {
	role, err := s.store.UserRole(ctx, session.UserID)
	if err != nil {
		return nil, &review.StoreError{Op: "lookup role", Err: err}
	}
	if !rbac.Can(role, rbac.ActionHistory) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Decision history requires the history capability", nil)
	}

	records, err := s.store.ListDecisions(ctx, clauseID)
	if err != nil {
		return nil, &review.StoreError{Op: "list decisions", Err: err}
	}
	if len(records) == 0 {
		if _, err := s.store.GetClause(ctx, clauseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("clause %s: %w", clauseID, review.ErrNotFound)
			}
			return nil, &review.StoreError{Op: "get clause", Err: err}
		}
	}
	decisions, err := review.DecodeRecords(records)
	if err != nil {
		s.logIntegrity(ctx, clauseID, err)
		return nil, err
	}
	byID := make(map[string]store.DecisionRecord, len(records))
	authorIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{})
	for _, rec := range records {
		byID[rec.ID] = rec
		if _, ok := seen[rec.AuthorID]; !ok {
			seen[rec.AuthorID] = struct{}{}
			authorIDs = append(authorIDs, rec.AuthorID)
		}
	}
	names, err := s.directory.DisplayNames(ctx, authorIDs)
	if err != nil {
		return nil, &review.StoreError{Op: "resolve display names", Err: err}
	}

	visible := review.Visible(decisions)
	views := make([]DecisionView, 0, len(visible))
	for _, d := range visible {
		views = append(views, decisionView(byID[d.ID], names))
	}
	return views, nil
}

func decisionView(rec store.DecisionRecord, names map[string]string) DecisionView {
	name := names[rec.AuthorID]
	if name == "" {
		name = rec.AuthorID
	}
	return DecisionView{
		ID:         rec.ID,
		ClauseID:   rec.ClauseID,
		FindingID:  rec.FindingID,
		AuthorID:   rec.AuthorID,
		AuthorName: name,
		ActionType: rec.ActionType,
		Payload:    rec.Payload,
		CreatedAt:  rec.CreatedAt,
		Legacy:     rec.FindingID == nil,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
