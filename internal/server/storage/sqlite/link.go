package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/affilink/internal/models"
)

// SaveLink appends a link record
func (s *Storage) SaveLink(ctx context.Context, link *models.Link) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO links (user_id, original_url, rewritten_url, source, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		link.UserID,
		link.OriginalURL,
		link.RewrittenURL,
		link.Source,
		link.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get link id: %w", err)
	}
	link.ID = id

	return nil
}

// GetUserLinks retrieves all link records of a user ordered by creation time
func (s *Storage) GetUserLinks(ctx context.Context, userID int64) ([]*models.Link, error) {
	query := `
		SELECT id, user_id, original_url, rewritten_url, source, created_at
		FROM links
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user links: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	links := make([]*models.Link, 0)

	for rows.Next() {
		link := &models.Link{}
		if err := rows.Scan(
			&link.ID,
			&link.UserID,
			&link.OriginalURL,
			&link.RewrittenURL,
			&link.Source,
			&link.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return links, nil
}
