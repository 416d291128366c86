package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultTokenBytes размер случайной части токенов (256 бит)
const DefaultTokenBytes = 32

// GenerateToken создает криптографически случайный opaque токен.
// Используется для session id, access/refresh токенов и сгенерированного client_secret.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		size = DefaultTokenBytes
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken хеширует токен с использованием SHA256.
// В хранилище попадает только результат, сам токен знает только клиент.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualSecrets сравнивает два секрета за постоянное время
func EqualSecrets(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
