package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a SQLite file. Submissions are stored as
// JSON next to the columns needed for lookups. Aggregate updates and their
// idempotency markers commit in one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		contest_id TEXT NOT NULL DEFAULT '',
		problem_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		doc TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_by_owner
		ON submissions (contest_id, problem_id, user_id, status)`,
	`CREATE TABLE IF NOT EXISTS problem_stats (
		problem_id TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
		user_id TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0,
		accepted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		contest_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (contest_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS participant_submissions (
		contest_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		submission_id TEXT NOT NULL,
		PRIMARY KEY (contest_id, user_id, submission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS participant_solves (
		contest_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		submission_id TEXT NOT NULL,
		PRIMARY KEY (contest_id, user_id, problem_id)
	)`,
	`CREATE TABLE IF NOT EXISTS applied_effects (
		effect TEXT NOT NULL,
		submission_id TEXT NOT NULL,
		PRIMARY KEY (effect, submission_id)
	)`,
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	logger.Debug("sqlite store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM submissions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission %s: %w", id, err)
	}
	var sub Submission
	if err := json.Unmarshal([]byte(doc), &sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission %s: %w", id, err)
	}
	return &sub, nil
}

func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub *Submission) error {
	doc, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode submission %s: %w", sub.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, contest_id, problem_id, user_id, status, doc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			contest_id = excluded.contest_id,
			problem_id = excluded.problem_id,
			user_id = excluded.user_id,
			status = excluded.status,
			doc = excluded.doc`,
		sub.ID, sub.ContestID, sub.ProblemID, sub.UserID, sub.Status, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordContestResult(ctx context.Context, r ContestResult) (awarded bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (contest_id, user_id, score) VALUES (?, ?, 0)
			ON CONFLICT (contest_id, user_id) DO NOTHING`,
			r.ContestID, r.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO participant_submissions (contest_id, user_id, submission_id)
			VALUES (?, ?, ?)`,
			r.ContestID, r.UserID, r.SubmissionID); err != nil {
			return err
		}
		if !r.Award {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO participant_solves (contest_id, user_id, problem_id, submission_id)
			VALUES (?, ?, ?, ?)`,
			r.ContestID, r.UserID, r.ProblemID, r.SubmissionID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE participants SET score = score + ? WHERE contest_id = ? AND user_id = ?`,
			r.Points, r.ContestID, r.UserID); err != nil {
			return err
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record contest result: %w", err)
	}
	return awarded, nil
}

func (s *SQLiteStore) ApplyProblemStats(ctx context.Context, problemID, submissionID string, accepted bool) (bool, error) {
	return s.applyCounter(ctx, "problem_stats", "problem_id", problemID, submissionID, accepted)
}

func (s *SQLiteStore) ApplyUserStats(ctx context.Context, userID, submissionID string, accepted bool) (bool, error) {
	return s.applyCounter(ctx, "user_stats", "user_id", userID, submissionID, accepted)
}

// applyCounter increments table's counters for id unless the effect was
// already recorded for submissionID. table and column are constants.
func (s *SQLiteStore) applyCounter(ctx context.Context, table, column, id, submissionID string, accepted bool) (applied bool, err error) {
	acc := 0
	if accepted {
		acc = 1
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO applied_effects (effect, submission_id) VALUES (?, ?)`,
			table+":"+id, submissionID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, total, accepted) VALUES (?, 1, ?)
			ON CONFLICT (%[2]s) DO UPDATE SET
				total = total + 1,
				accepted = accepted + excluded.accepted`, table, column),
			id, acc)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply %s: %w", table, err)
	}
	return applied, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, contestID, userID string) (*Participant, error) {
	p := &Participant{ContestID: contestID, UserID: userID, Solved: []string{}, Submissions: []string{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM participants WHERE contest_id = ? AND user_id = ?`,
		contestID, userID).Scan(&p.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %s/%s: %w", contestID, userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}

	p.Solved, err = s.queryStrings(ctx,
		`SELECT problem_id FROM participant_solves WHERE contest_id = ? AND user_id = ? ORDER BY rowid`,
		contestID, userID)
	if err != nil {
		return nil, err
	}
	p.Submissions, err = s.queryStrings(ctx,
		`SELECT submission_id FROM participant_submissions WHERE contest_id = ? AND user_id = ? ORDER BY rowid`,
		contestID, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProblemStats(ctx context.Context, problemID string) (*ProblemStats, error) {
	p := &ProblemStats{ProblemID: problemID}
	err := s.db.QueryRowContext(ctx,
		`SELECT total, accepted FROM problem_stats WHERE problem_id = ?`, problemID).
		Scan(&p.TotalSubmissions, &p.AcceptedSubmissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("problem stats %s: %w", problemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load problem stats: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	u := &UserStats{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT total, accepted FROM user_stats WHERE user_id = ?`, userID).
		Scan(&u.TotalSubmissions, &u.AcceptedSubmissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user stats %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
