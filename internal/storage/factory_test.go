package storage

import (
	"context"
	"path/filepath"
	"testing"

	"eventhub/internal/models"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()
	ctx := context.Background()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		providers := factory.GetSupportedProviders()
		expected := []string{"memory", "postgres", "sqlite"}
		if len(providers) != len(expected) {
			t.Fatalf("Expected %d providers, got %v", len(expected), providers)
		}
		for i, provider := range expected {
			if providers[i] != provider {
				t.Errorf("Expected provider %s at index %d, got %v", provider, i, providers)
			}
		}
	})

	t.Run("Memory", func(t *testing.T) {
		s, err := factory.Create(ctx, models.StorageConfig{Type: models.StorageTypeMemory})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*MemoryStorage); !ok {
			t.Errorf("expected *MemoryStorage, got %T", s)
		}
	})

	t.Run("SQLite", func(t *testing.T) {
		s, err := factory.Create(ctx, models.StorageConfig{
			Type:     models.StorageTypeSQLite,
			Database: models.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "factory.db")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*SQLiteStorage); !ok {
			t.Errorf("expected *SQLiteStorage, got %T", s)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := factory.Create(ctx, models.StorageConfig{Type: "json"}); err == nil {
			t.Error("expected error for unsupported storage type")
		}
	})
}
