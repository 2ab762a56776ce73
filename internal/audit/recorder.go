// Package audit persists the pipeline's paper trail: two-phase effect
// records, auto-approved audit tickets, and summarized memory episodes.
// Effects are written in a pending state before the underlying action runs
// and finalized once its outcome is known, so a crash mid-action still
// leaves evidence that it was attempted.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// EffectStatus is the lifecycle of a two-phase effect record.
type EffectStatus string

const (
	EffectPending   EffectStatus = "pending"
	EffectCommitted EffectStatus = "committed"
	EffectFailed    EffectStatus = "failed"
)

// Effect is one audited external action.
type Effect struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"` // code_change, self_deploy, ...
	Status    EffectStatus `json:"status"`
	Payload   string       `json:"payload"` // JSON detail, action-specific
	Outcome   string       `json:"outcome,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Recorder is the sqlite-backed audit ledger.
type Recorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRecorder opens (or creates) the ledger at path.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	r := &Recorder{db: db}
	if err := r.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS effects (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT,
		outcome TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		effect_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'approved',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (effect_id) REFERENCES effects(id)
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		summary TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_effects_kind ON effects(kind);
	CREATE INDEX IF NOT EXISTS idx_episodes_kind ON episodes(kind);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// PrepareEffect opens a pending effect record and returns its id. The
// payload is marshaled to JSON.
func (r *Recorder) PrepareEffect(kind string, payload interface{}) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal effect payload: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.Exec(
		`INSERT INTO effects (id, kind, status, payload) VALUES (?, ?, ?, ?)`,
		id, kind, string(EffectPending), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to prepare effect: %w", err)
	}
	return id, nil
}

// CommitEffect finalizes a pending effect with its outcome.
func (r *Recorder) CommitEffect(id, outcome string) error {
	return r.finalize(id, EffectCommitted, outcome)
}

// FailEffect finalizes a pending effect as failed.
func (r *Recorder) FailEffect(id, outcome string) error {
	return r.finalize(id, EffectFailed, outcome)
}

func (r *Recorder) finalize(id string, status EffectStatus, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(
		`UPDATE effects SET status = ?, outcome = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(status), outcome, id, string(EffectPending),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize effect %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("effect %s is not pending", id)
	}
	return nil
}

// GetEffect loads one effect by id.
func (r *Recorder) GetEffect(id string) (*Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(
		`SELECT id, kind, status, payload, COALESCE(outcome, ''), created_at, updated_at
		 FROM effects WHERE id = ?`, id)

	var e Effect
	if err := row.Scan(&e.ID, &e.Kind, &e.Status, &e.Payload, &e.Outcome, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to load effect %s: %w", id, err)
	}
	return &e, nil
}

// OpenTicket files an auto-approved audit ticket against an effect.
func (r *Recorder) OpenTicket(effectID, title string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	_, err := r.db.Exec(
		`INSERT INTO tickets (id, effect_id, title) VALUES (?, ?, ?)`,
		id, effectID, title,
	)
	if err != nil {
		return "", fmt.Errorf("failed to open ticket: %w", err)
	}
	return id, nil
}

// StoreEpisode writes a summarized memory episode.
func (r *Recorder) StoreEpisode(kind, summary string, detail interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal episode detail: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO episodes (id, kind, summary, detail) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), kind, summary, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store episode: %w", err)
	}
	return nil
}

// RecentEpisodes returns up to limit episode summaries, newest first.
func (r *Recorder) RecentEpisodes(kind string, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		`SELECT summary FROM episodes WHERE kind = ? ORDER BY created_at DESC LIMIT ?`,
		kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
