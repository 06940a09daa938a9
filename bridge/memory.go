package bridge

import (
	"context"

	"github.com/basket/pocketclaw/internal/memory"
	"github.com/basket/pocketclaw/internal/shared"
)

// MemoryEntry is one stored memory. Score is only set on recall results
// and indicates match quality in [0, 1].
type MemoryEntry struct {
	ID          string
	Key         string
	Content     string
	Category    string
	TimestampMS int64
	Score       *float64
}

func toMemoryEntry(e memory.Entry) MemoryEntry {
	return MemoryEntry{
		ID:          e.ID,
		Key:         e.Key,
		Content:     e.Content,
		Category:    e.Category,
		TimestampMS: shared.EpochMS(e.CreatedAt),
		Score:       e.Score,
	}
}

// ListMemories returns stored memories, newest first, optionally filtered
// by category (nil means all categories), truncated to limit entries.
func ListMemories(category *string, limit uint32) ([]MemoryEntry, error) {
	return guardErr(func() ([]MemoryEntry, error) {
		store, err := rt().Memories()
		if err != nil {
			return nil, err
		}
		cat := ""
		if category != nil {
			cat = *category
		}
		entries, err := store.List(context.Background(), cat, int(limit))
		if err != nil {
			return nil, err
		}
		out := make([]MemoryEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, toMemoryEntry(e))
		}
		return out, nil
	})
}

// RecallMemory searches memories by keyword query and returns up to limit
// entries ranked by relevance.
func RecallMemory(query string, limit uint32) ([]MemoryEntry, error) {
	return guardErr(func() ([]MemoryEntry, error) {
		store, err := rt().Memories()
		if err != nil {
			return nil, err
		}
		entries, err := store.Recall(context.Background(), query, int(limit))
		if err != nil {
			return nil, err
		}
		out := make([]MemoryEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, toMemoryEntry(e))
		}
		return out, nil
	})
}

// ForgetMemory deletes a memory by key or id. Returns true if an entry
// was found and deleted.
func ForgetMemory(key string) (bool, error) {
	return guardErr(func() (bool, error) {
		store, err := rt().Memories()
		if err != nil {
			return false, err
		}
		return store.Forget(context.Background(), key)
	})
}

// MemoryCount returns the total number of stored memories.
func MemoryCount() (uint32, error) {
	return guardErr(func() (uint32, error) {
		store, err := rt().Memories()
		if err != nil {
			return 0, err
		}
		n, err := store.Count(context.Background())
		if err != nil {
			return 0, err
		}
		if n > uint64(^uint32(0)) {
			return ^uint32(0), nil
		}
		return uint32(n), nil
	})
}
