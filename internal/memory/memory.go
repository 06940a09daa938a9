// Package memory is the agent's long-term key/content store. Entries live in
// sqlite under the data directory, so the host can browse them whether or
// not the daemon is running.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basket/pocketclaw/internal/persistence"
)

// Entry is one stored memory. Score is only set on recall results.
type Entry struct {
	ID        string
	Key       string
	Content   string
	Category  string
	CreatedAt time.Time
	Score     *float64
}

// Store provides CRUD over agent memories.
type Store struct {
	store *persistence.Store
}

// NewStore wraps the shared sqlite store.
func NewStore(store *persistence.Store) *Store {
	return &Store{store: store}
}

// Save stores or replaces a memory by key (UPSERT).
func (s *Store) Save(ctx context.Context, key, content, category string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("memory key must not be empty")
	}
	if category == "" {
		category = "general"
	}
	return persistence.RetryOnBusy(ctx, 5, func() error {
		_, err := s.store.DB().ExecContext(ctx, `
			INSERT INTO agent_memories (id, key, content, category, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				content = excluded.content,
				category = excluded.category`,
			uuid.NewString(), key, content, category,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// List returns memories, newest first, optionally filtered by category.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, category string, limit int) ([]Entry, error) {
	query := `SELECT id, key, content, category, created_at FROM agent_memories`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recall searches key and content for the query terms and returns matches
// ranked by the fraction of terms present, newest first within equal scores.
func (s *Store) Recall(ctx context.Context, query string, limit int) ([]Entry, error) {
	terms := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(terms) == 0 {
		return nil, nil
	}

	// Pre-filter in SQL on any term, then score in memory. The table is
	// small (single-agent store), so a LIKE scan is fine.
	conditions := make([]string, len(terms))
	args := make([]any, 0, len(terms)*2)
	for i, term := range terms {
		conditions[i] = `(LOWER(key) LIKE ? OR LOWER(content) LIKE ?)`
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT id, key, content, category, created_at FROM agent_memories
		WHERE `+strings.Join(conditions, " OR ")+`
		ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("recall memories: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	scored := entries[:0]
	for i := range entries {
		haystack := strings.ToLower(entries[i].Key + " " + entries[i].Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(terms))
		entries[i].Score = &score
		scored = append(scored, entries[i])
	}

	// Stable sort by score descending; scanEntries already ordered by recency.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && *scored[j].Score > *scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Forget deletes a memory by id or key. Returns whether a row was removed.
func (s *Store) Forget(ctx context.Context, idOrKey string) (bool, error) {
	var deleted bool
	err := persistence.RetryOnBusy(ctx, 5, func() error {
		res, err := s.store.DB().ExecContext(ctx,
			`DELETE FROM agent_memories WHERE id = ? OR key = ?`, idOrKey, idOrKey)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Key, &e.Content, &e.Category, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
