package models

import "time"

// Link is a durable record of one resolution of an original URL into a
// rewritten (affiliate) URL. Records are append-only.
type Link struct {
	CreatedAt    time.Time `json:"createdAt"`
	OriginalURL  string    `json:"originalUrl"`
	RewrittenURL string    `json:"rewrittenUrl"`
	Source       string    `json:"source"`
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
}
