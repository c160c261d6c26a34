package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"redline/api/internal/rbac"
	"redline/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name, email, created_at FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err == nil {
		role, roleErr := s.getRole(ctx, user.ID)
		if roleErr != nil {
			return User{}, roleErr
		}
		user.Role = role
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	insertUser := `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, CONCAT(LOWER(REPLACE($2, ' ', '.')), '@local.redline.dev'))
		RETURNING id, display_name, email, created_at
	`
	if err := s.db.QueryRowContext(ctx, insertUser, util.NewID("usr"), name).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_memberships (user_id, role)
		VALUES ($1, 'reviewer')
		ON CONFLICT (user_id) DO NOTHING
	`, user.ID); err != nil {
		return User{}, fmt.Errorf("upsert membership: %w", err)
	}

	user.Role = string(rbac.RoleReviewer)
	return user, nil
}

func (s *PostgresStore) SetUserRole(ctx context.Context, userID string, role rbac.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_memberships (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
	`, userID, string(role))
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `SELECT id, display_name, email, created_at FROM users WHERE id=$1`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	role, err := s.getRole(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	user.Role = role
	return user, nil
}

// ListUsersByIDs returns the users among ids that exist, in one query.
func (s *PostgresStore) ListUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.email, COALESCE(wm.role, 'viewer'), u.created_at
		FROM users u
		LEFT JOIN workspace_memberships wm ON wm.user_id = u.id
		WHERE u.id = ANY($1)
		ORDER BY u.id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list users by id: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(ids))
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UserRole returns the workspace role of a user; users without a membership
// are viewers.
func (s *PostgresStore) UserRole(ctx context.Context, userID string) (rbac.Role, error) {
	role, err := s.getRole(ctx, userID)
	if err != nil {
		return "", err
	}
	return rbac.Normalize(role), nil
}

func (s *PostgresStore) getRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM workspace_memberships WHERE user_id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return string(rbac.RoleViewer), nil
	}
	if err != nil {
		return "", fmt.Errorf("read role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) CountClauses(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clauses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count clauses: %w", err)
	}
	return count, nil
}

// InsertClauseWithFindings writes a clause and its findings in one
// transaction, so a clause never exists with only part of its findings.
func (s *PostgresStore) InsertClauseWithFindings(ctx context.Context, clause Clause, findings []Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clause tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO clauses (id, analysis_id, position, original_text)
		VALUES ($1, $2, $3, $4)
	`, clause.ID, clause.AnalysisID, clause.Position, clause.OriginalText); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert clause: %w", err)
	}

	for _, finding := range findings {
		if finding.ClauseID != clause.ID {
			_ = tx.Rollback()
			return fmt.Errorf("insert finding %s: belongs to clause %s, not %s", finding.ID, finding.ClauseID, clause.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO findings (id, clause_id, risk_level, matched_rule_id, suggested_text, source_excerpt)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, finding.ID, finding.ClauseID, finding.RiskLevel, finding.MatchedRuleID, finding.SuggestedText, finding.SourceExcerpt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert finding %s: %w", finding.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clause tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClause(ctx context.Context, clauseID string) (Clause, error) {
	var clause Clause
	var currentText sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, analysis_id, position, original_text, current_text, created_at, updated_at
		FROM clauses
		WHERE id=$1
	`, clauseID).Scan(
		&clause.ID,
		&clause.AnalysisID,
		&clause.Position,
		&clause.OriginalText,
		&currentText,
		&clause.CreatedAt,
		&clause.UpdatedAt,
	)
	if err != nil {
		return Clause{}, err
	}
	if currentText.Valid {
		text := currentText.String
		clause.CurrentText = &text
	}
	return clause, nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, clauseID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clause_id, risk_level, matched_rule_id, suggested_text, source_excerpt, created_at
		FROM findings
		WHERE clause_id=$1
		ORDER BY created_at ASC, id ASC
	`, clauseID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	items := make([]Finding, 0)
	for rows.Next() {
		var item Finding
		if err := rows.Scan(
			&item.ID,
			&item.ClauseID,
			&item.RiskLevel,
			&item.MatchedRuleID,
			&item.SuggestedText,
			&item.SourceExcerpt,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return items, nil
}

// ListDecisions returns the whole log of a clause, legacy rows included, in
// (created_at, seq) order.
func (s *PostgresStore) ListDecisions(ctx context.Context, clauseID string) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, clause_id, finding_id, author_id, action_type, payload, created_at
		FROM decisions
		WHERE clause_id=$1
		ORDER BY created_at ASC, seq ASC
	`, clauseID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	items := make([]DecisionRecord, 0)
	for rows.Next() {
		var item DecisionRecord
		var findingID sql.NullString
		var payload []byte
		if err := rows.Scan(
			&item.ID,
			&item.Seq,
			&item.ClauseID,
			&findingID,
			&item.AuthorID,
			&item.ActionType,
			&payload,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if findingID.Valid {
			id := findingID.String
			item.FindingID = &id
		}
		item.Payload = payload
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return items, nil
}

// AppendDecision inserts one decision and bumps the clause's updated_at in a
// single transaction. The returned record carries the store-assigned seq and
// timestamp.
func (s *PostgresStore) AppendDecision(ctx context.Context, rec DecisionRecord) (DecisionRecord, error) {
	payload := string(rec.Payload)
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DecisionRecord{}, fmt.Errorf("begin append tx: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO decisions (id, clause_id, finding_id, author_id, action_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING seq, created_at
	`, rec.ID, rec.ClauseID, rec.FindingID, rec.AuthorID, rec.ActionType, payload).Scan(&rec.Seq, &rec.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return DecisionRecord{}, fmt.Errorf("insert decision: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE clauses SET updated_at = GREATEST(updated_at, $2) WHERE id=$1
	`, rec.ClauseID, rec.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return DecisionRecord{}, fmt.Errorf("touch clause: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return DecisionRecord{}, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return DecisionRecord{}, fmt.Errorf("commit append tx: %w", err)
	}
	return rec, nil
}

// SetClauseCurrentText refreshes the display copy of the effective text.
func (s *PostgresStore) SetClauseCurrentText(ctx context.Context, clauseID, text string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE clauses SET current_text=$2 WHERE id=$1`, clauseID, text)
	if err != nil {
		return fmt.Errorf("set clause current text: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
