package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blockmind/fastgemini/pkg/models"
)

func storageBackends(t *testing.T) map[string]ChatStorage {
	t.Helper()
	db, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "chats.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]ChatStorage{
		"memory": NewMemoryStorage(),
		"sqlite": db,
	}
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	history := []models.Message{
		models.NewUserQuery("hello"),
		models.NewFunctionCall("lookup", map[string]any{"key": "x"}),
		models.NewFunctionResult("lookup", map[string]any{"value": "y"}),
	}

	for name, store := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdateHistory(ctx, "c1", history); err != nil {
				t.Fatalf("UpdateHistory: %v", err)
			}
			got, err := store.GetHistory(ctx, "c1")
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(got))
			}
			if got[0].Query != "hello" {
				t.Errorf("first message wrong: %+v", got[0])
			}
			if got[1].Kind != models.KindFunctionCall || got[1].ToolArgs["key"] != "x" {
				t.Errorf("second message wrong: %+v", got[1])
			}
			if got[2].Kind != models.KindFunctionResult || got[2].ToolResult["value"] != "y" {
				t.Errorf("third message wrong: %+v", got[2])
			}
		})
	}
}

func TestStorageUnknownChatIsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, store := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.GetHistory(ctx, "nope")
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("expected empty history, got %d", len(got))
			}
		})
	}
}

func TestStorageAppendExtendsInOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.AppendHistory(ctx, "c2", models.NewUserQuery("one")); err != nil {
				t.Fatalf("AppendHistory: %v", err)
			}
			if err := store.AppendHistory(ctx, "c2",
				models.NewUserQuery("two"), models.NewUserQuery("three")); err != nil {
				t.Fatalf("AppendHistory: %v", err)
			}
			got, err := store.GetHistory(ctx, "c2")
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(got))
			}
			for i, want := range []string{"one", "two", "three"} {
				if got[i].Query != want {
					t.Errorf("message %d = %q, want %q", i, got[i].Query, want)
				}
			}
		})
	}
}

func TestStorageUpdateReplacesHistory(t *testing.T) {
	ctx := context.Background()
	for name, store := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.UpdateHistory(ctx, "c3", []models.Message{
				models.NewUserQuery("old-1"), models.NewUserQuery("old-2"),
			}); err != nil {
				t.Fatalf("UpdateHistory: %v", err)
			}
			if err := store.UpdateHistory(ctx, "c3", []models.Message{
				models.NewUserQuery("new"),
			}); err != nil {
				t.Fatalf("UpdateHistory: %v", err)
			}
			got, err := store.GetHistory(ctx, "c3")
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(got) != 1 || got[0].Query != "new" {
				t.Errorf("replace failed: %+v", got)
			}
		})
	}
}

func TestMemoryStorageReadsAreIndependentCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	if err := store.UpdateHistory(ctx, "c4", []models.Message{
		models.NewFunctionCall("tool", map[string]any{"k": "original"}),
	}); err != nil {
		t.Fatalf("UpdateHistory: %v", err)
	}

	first, _ := store.GetHistory(ctx, "c4")
	first[0].ToolArgs["k"] = "mutated"
	first[0].Query = "mutated"

	second, _ := store.GetHistory(ctx, "c4")
	if second[0].ToolArgs["k"] != "original" {
		t.Error("stored history mutated through a read copy")
	}
	if second[0].Query == "mutated" {
		t.Error("stored message mutated through a read copy")
	}
}
