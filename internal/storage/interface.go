package storage

import (
	"context"

	"eventhub/internal/models"
)

// Storage persists the records behind the rate-limited endpoints. Backends
// return ErrNotFound and ErrConflict (wrapped) so callers can use errors.Is.
type Storage interface {
	// CreateRegistration stores a new registration. A second registration
	// for the same event and email returns ErrConflict.
	CreateRegistration(ctx context.Context, reg *models.Registration) error

	// ListRegistrations returns the registrations of an event, oldest first.
	ListRegistrations(ctx context.Context, eventID string) ([]*models.Registration, error)

	// CreateShortLink stores a new short link. An existing key returns ErrConflict.
	CreateShortLink(ctx context.Context, link *models.ShortLink) error

	// GetShortLink retrieves a short link by key.
	GetShortLink(ctx context.Context, key string) (*models.ShortLink, error)

	// CreateAPIKey stores a new API key. A duplicate key hash returns ErrConflict.
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	// GetAPIKeyByHash looks up an API key by the SHA-256 hash of its raw value.
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}
