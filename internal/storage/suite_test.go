package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventhub/internal/models"
)

// runStorageSuite exercises the Storage contract against any backend.
func runStorageSuite(t *testing.T, s Storage) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	})

	t.Run("Registrations", func(t *testing.T) {
		first := &models.Registration{
			ID: models.NewID(), EventID: "summit", Name: "Ada", Email: "ada@example.com",
			Role: "speaker", ClientIP: "203.0.113.1", CreatedAt: base,
		}
		second := &models.Registration{
			ID: models.NewID(), EventID: "summit", Name: "Grace", Email: "grace@example.com",
			Phone: "+1 555 0100", CreatedAt: base.Add(time.Minute),
		}
		other := &models.Registration{
			ID: models.NewID(), EventID: "meetup", Name: "Ada", Email: "ada@example.com", CreatedAt: base,
		}

		for _, reg := range []*models.Registration{first, second, other} {
			if err := s.CreateRegistration(ctx, reg); err != nil {
				t.Fatalf("create registration %s: %v", reg.Email, err)
			}
		}

		dup := *first
		dup.ID = models.NewID()
		if err := s.CreateRegistration(ctx, &dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate email, got %v", err)
		}

		regs, err := s.ListRegistrations(ctx, "summit")
		if err != nil {
			t.Fatalf("list registrations: %v", err)
		}
		if len(regs) != 2 {
			t.Fatalf("expected 2 registrations, got %d", len(regs))
		}
		if regs[0].Email != "ada@example.com" || regs[1].Email != "grace@example.com" {
			t.Errorf("unexpected order: %s, %s", regs[0].Email, regs[1].Email)
		}
		if regs[1].Phone != "+1 555 0100" || regs[0].Role != "speaker" {
			t.Errorf("optional fields not round-tripped: %+v", regs)
		}
		if !regs[0].CreatedAt.Equal(base) {
			t.Errorf("expected created_at %v, got %v", base, regs[0].CreatedAt)
		}

		empty, err := s.ListRegistrations(ctx, "nobody")
		if err != nil {
			t.Fatalf("list empty event: %v", err)
		}
		if empty == nil || len(empty) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", empty)
		}
	})

	t.Run("ShortLinks", func(t *testing.T) {
		expires := base.Add(24 * time.Hour)
		link := &models.ShortLink{
			Key: "aZ3kP9q", TargetURL: "https://example.com/events/summit",
			CreatedBy: "user-1", CreatedAt: base, ExpiresAt: &expires,
		}
		if err := s.CreateShortLink(ctx, link); err != nil {
			t.Fatalf("create short link: %v", err)
		}
		if err := s.CreateShortLink(ctx, link); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate key, got %v", err)
		}

		got, err := s.GetShortLink(ctx, "aZ3kP9q")
		if err != nil {
			t.Fatalf("get short link: %v", err)
		}
		if got.TargetURL != link.TargetURL || got.CreatedBy != "user-1" {
			t.Errorf("unexpected link: %+v", got)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
			t.Errorf("expected expiry %v, got %v", expires, got.ExpiresAt)
		}

		forever := &models.ShortLink{Key: "forever", TargetURL: "https://example.com", CreatedAt: base}
		if err := s.CreateShortLink(ctx, forever); err != nil {
			t.Fatalf("create short link without expiry: %v", err)
		}
		got, err = s.GetShortLink(ctx, "forever")
		if err != nil {
			t.Fatalf("get short link: %v", err)
		}
		if got.ExpiresAt != nil {
			t.Errorf("expected no expiry, got %v", got.ExpiresAt)
		}

		if _, err := s.GetShortLink(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("APIKeys", func(t *testing.T) {
		key := models.NewAPIKey("user-1", "ci", "evh_suite-key-value", []string{models.PermissionRead, models.PermissionWrite})
		if err := s.CreateAPIKey(ctx, key); err != nil {
			t.Fatalf("create api key: %v", err)
		}

		dup := models.NewAPIKey("user-2", "again", "evh_suite-key-value", nil)
		if err := s.CreateAPIKey(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate hash, got %v", err)
		}

		got, err := s.GetAPIKeyByHash(ctx, models.HashAPIKey("evh_suite-key-value"))
		if err != nil {
			t.Fatalf("get api key: %v", err)
		}
		if got.ID != key.ID || got.UserID != "user-1" || !got.Enabled {
			t.Errorf("unexpected key: %+v", got)
		}
		if !got.HasPermission(models.PermissionWrite) || got.HasPermission(models.PermissionAdmin) {
			t.Errorf("permissions not round-tripped: %v", got.Permissions)
		}

		if _, err := s.GetAPIKeyByHash(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
