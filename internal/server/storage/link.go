package storage

import (
	"context"

	"github.com/iudanet/affilink/internal/models"
)

// LinkStorage defines interface for the append-only link history
type LinkStorage interface {
	// SaveLink appends a link record and assigns link.ID
	// CreatedAt is set to now when zero
	SaveLink(ctx context.Context, link *models.Link) error

	// GetUserLinks retrieves all link records of a user ordered by creation time
	// Returns empty slice if no links found
	GetUserLinks(ctx context.Context, userID int64) ([]*models.Link, error)
}

// Storage combines every persistence concern of the service
type Storage interface {
	UserStorage
	TokenStorage
	LinkStorage
	Close() error
}
