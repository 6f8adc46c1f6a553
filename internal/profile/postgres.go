package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/dropsense/internal/adaptation"
	"github.com/FairForge/dropsense/internal/insights"
)

// PostgresStore persists profiles as JSONB documents, one table per
// projection. Tables are created by database.Migrate.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open lib/pq connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRisk(ctx context.Context, userID string) (*RiskProfile, error) {
	var p RiskProfile
	err := s.getDocument(ctx, `SELECT assessment FROM risk_profiles WHERE user_id = $1`, userID, &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query risk profile: %w", err)
	}
	return &p, nil
}

// SaveRisk upserts the profile and inserts its evolution entries in one
// transaction.
func (s *PostgresStore) SaveRisk(ctx context.Context, p *RiskProfile, changes ...*PreferenceEvolution) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal risk profile: %w", err)
	}
	query := `
		INSERT INTO risk_profiles (user_id, assessment, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET assessment = EXCLUDED.assessment, updated_at = EXCLUDED.updated_at
	`
	return s.inTx(ctx, changes, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, p.UserID, doc, p.UpdatedAt); err != nil {
			return fmt.Errorf("upsert risk profile: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListChains(ctx context.Context, userID string) ([]ChainPreference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT score FROM chain_preferences WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chain preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChainPreference
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan chain preference: %w", err)
		}
		var p ChainPreference
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode chain preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortChains(out)
	return out, nil
}

// SaveChains upserts every chain and inserts the evolution entries in one
// transaction.
func (s *PostgresStore) SaveChains(ctx context.Context, userID string, prefs []ChainPreference, changes ...*PreferenceEvolution) error {
	if len(prefs) == 0 && len(changes) == 0 {
		return nil
	}
	query := `
		INSERT INTO chain_preferences (user_id, chain, score, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, chain) DO UPDATE
		SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
	`
	return s.inTx(ctx, changes, func(tx *sql.Tx) error {
		for _, p := range prefs {
			doc, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("marshal chain preference: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, userID, p.Chain, doc, p.UpdatedAt); err != nil {
				return fmt.Errorf("upsert chain %s: %w", p.Chain, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetActivity(ctx context.Context, userID string) (*ActivityPattern, error) {
	var p ActivityPattern
	err := s.getDocument(ctx, `SELECT score FROM activity_patterns WHERE user_id = $1`, userID, &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query activity pattern: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SaveActivity(ctx context.Context, p *ActivityPattern, changes ...*PreferenceEvolution) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal activity pattern: %w", err)
	}
	query := `
		INSERT INTO activity_patterns (user_id, score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
	`
	return s.inTx(ctx, changes, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, p.UserID, doc, p.UpdatedAt); err != nil {
			return fmt.Errorf("upsert activity pattern: %w", err)
		}
		return nil
	})
}

// inTx runs write and then inserts changes, committing only when both
// succeed.
func (s *PostgresStore) inTx(ctx context.Context, changes []*PreferenceEvolution, write func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := write(tx); err != nil {
		return err
	}
	ids := make([]int64, len(changes))
	for i, e := range changes {
		if ids[i], err = insertEvolution(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, e := range changes {
		e.ID = ids[i]
	}
	return nil
}

func (s *PostgresStore) GetAdaptation(ctx context.Context, userID string) (*adaptation.State, error) {
	var cfg, history []byte
	st := adaptation.State{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT config, history, updated_at FROM adaptation_configs WHERE user_id = $1`, userID,
	).Scan(&cfg, &history, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query adaptation: %w", err)
	}
	if err := json.Unmarshal(cfg, &st.Config); err != nil {
		return nil, fmt.Errorf("decode adaptation config: %w", err)
	}
	if err := json.Unmarshal(history, &st.History); err != nil {
		return nil, fmt.Errorf("decode adaptation history: %w", err)
	}
	return &st, nil
}

// ApplyAdaptation replaces the config and appends rec to the JSONB history
// array in a single statement.
func (s *PostgresStore) ApplyAdaptation(ctx context.Context, userID string, cfg adaptation.Config, rec adaptation.Record) error {
	cfgDoc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal adaptation config: %w", err)
	}
	recDoc, err := json.Marshal([]adaptation.Record{rec})
	if err != nil {
		return fmt.Errorf("marshal adaptation record: %w", err)
	}
	query := `
		INSERT INTO adaptation_configs (user_id, config, history, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET config = EXCLUDED.config,
		    history = adaptation_configs.history || EXCLUDED.history,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, cfgDoc, recDoc, rec.Timestamp); err != nil {
		return fmt.Errorf("apply adaptation: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvolution(ctx context.Context, e *PreferenceEvolution) error {
	id, err := insertEvolution(ctx, s.db, e)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertEvolution(ctx context.Context, q queryRower, e *PreferenceEvolution) (int64, error) {
	query := `
		INSERT INTO preference_evolution (
			user_id, category, old_value, new_value, change_reason, change_trigger, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var old any
	if len(e.OldValue) > 0 {
		old = []byte(e.OldValue)
	}
	var id int64
	err := q.QueryRowContext(ctx, query,
		e.UserID, e.Category, old, []byte(e.NewValue), e.ChangeReason, e.ChangeTrigger, e.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert evolution: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ListEvolution(ctx context.Context, userID string, limit int) ([]PreferenceEvolution, error) {
	query := `
		SELECT id, user_id, category, old_value, new_value, change_reason, change_trigger, created_at
		FROM preference_evolution
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evolution: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PreferenceEvolution
	for rows.Next() {
		var e PreferenceEvolution
		var old, cur []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &old, &cur, &e.ChangeReason, &e.ChangeTrigger, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan evolution: %w", err)
		}
		e.OldValue, e.NewValue = old, cur
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveInsights(ctx context.Context, list []*insights.Insight) error {
	if len(list) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO preference_insights (id, user_id, insight_type, body, is_read, created_at, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	for _, i := range list {
		doc, err := json.Marshal(i)
		if err != nil {
			return fmt.Errorf("marshal insight: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, i.ID, i.UserID, string(i.Type), doc, i.Read, i.CreatedAt, i.ValidUntil); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActiveInsights(ctx context.Context, userID string, now time.Time) ([]*insights.Insight, error) {
	query := `
		SELECT body, is_read FROM preference_insights
		WHERE user_id = $1 AND valid_until > $2
		ORDER BY created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*insights.Insight
	for rows.Next() {
		var doc []byte
		var read bool
		if err := rows.Scan(&doc, &read); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		var i insights.Insight
		if err := json.Unmarshal(doc, &i); err != nil {
			return nil, fmt.Errorf("decode insight: %w", err)
		}
		i.Read = read
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkInsightRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE preference_insights SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark insight read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark insight read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllInsightsRead(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE preference_insights SET is_read = TRUE
		WHERE user_id = $1 AND is_read = FALSE AND valid_until > $2`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("mark all insights read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all insights read: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) getDocument(ctx context.Context, query, userID string, dst any) error {
	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&doc); err != nil {
		return err
	}
	return json.Unmarshal(doc, dst)
}
