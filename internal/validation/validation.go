package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// UsernamePattern определяет допустимый формат username:
// латинские буквы, цифры, нижнее подчеркивание, точка и дефис, 3-32 символа
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

const (
	// MinUsernameLen минимальная длина username
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина username
	MaxUsernameLen = 32
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxPasswordLen максимальная длина пароля
	MaxPasswordLen = 128
	// MaxURLLen максимальная длина URL для переписывания
	MaxURLLen = 4096
	// MaxSourceLen максимальная длина метки источника в символах
	MaxSourceLen = 128
)

// ValidateUsername проверяет, что username соответствует требованиям
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}

	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, underscores, dots and dashes")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLen)
	}

	return nil
}

// ValidateURL проверяет, что URL абсолютный и использует http или https
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if len(raw) > MaxURLLen {
		return fmt.Errorf("url must not exceed %d characters", MaxURLLen)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is malformed: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https scheme")
	}

	if u.Host == "" {
		return fmt.Errorf("url must have a host")
	}

	return nil
}

// ValidateSource проверяет метку источника запроса ("chat", "chat client", "плагин").
// Допускается любой печатный текст, управляющие символы попали бы в логи и историю ссылок.
func ValidateSource(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("source cannot be empty")
	}

	if !utf8.ValidString(source) {
		return fmt.Errorf("source must be valid UTF-8")
	}

	if utf8.RuneCountInString(source) > MaxSourceLen {
		return fmt.Errorf("source must not exceed %d characters", MaxSourceLen)
	}

	for _, r := range source {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("source must contain only printable characters")
		}
	}

	return nil
}
