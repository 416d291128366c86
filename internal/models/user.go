package models

import "time"

// User представляет пользователя в системе
type User struct {
	CreatedAt    time.Time `json:"createdAt"` // время регистрации
	Username     string    `json:"username"`  // уникальный username
	PasswordHash string    `json:"-"`         // scrypt хеш пароля в формате "hex(key).hex(salt)"
	ID           int64     `json:"id"`        // числовой идентификатор пользователя
}

// RefreshToken представляет refresh token, выданный OAuth клиенту.
// В хранилище лежит только SHA256 хеш токена, сам токен знает только клиент.
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	TokenHash string    `json:"-"`          // SHA256 хеш токена (hex)
	ClientID  string    `json:"client_id"`  // OAuth client_id, которому выдан токен
	UserID    int64     `json:"user_id"`    // владелец (системный аккаунт)
}
