package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Параметры scrypt
const (
	// ScryptN - CPU/memory cost
	ScryptN = 1 << 14
	// ScryptR - block size
	ScryptR = 8
	// ScryptP - parallelization
	ScryptP = 1
	// KeyLen - длина производного ключа в байтах
	KeyLen = 64
	// SaltSize - размер соли в байтах
	SaltSize = 16
)

// HashPassword хеширует пароль через scrypt со свежей случайной солью.
// Результат имеет формат "hex(key).salt", где salt - hex строка из SaltSize байт.
// В scrypt передается сам текст соли, а не декодированные байты.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	saltHex := hex.EncodeToString(salt)

	key, err := deriveKey(password, saltHex, KeyLen)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(key) + "." + saltHex, nil
}

// VerifyPassword проверяет пароль против сохраненного хеша.
// Любая ошибка разбора хеша считается несовпадением.
func VerifyPassword(password, stored string) bool {
	keyHex, saltHex, ok := strings.Cut(stored, ".")
	if !ok || keyHex == "" || saltHex == "" {
		return false
	}

	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != KeyLen {
		return false
	}
	got, err := deriveKey(password, saltHex, KeyLen)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(want, got) == 1
}

func deriveKey(password, salt string, keyLen int) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), ScryptN, ScryptR, ScryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
