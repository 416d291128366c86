package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	key, salt, ok := strings.Cut(hash, ".")
	require.True(t, ok, "хеш должен содержать разделитель")
	assert.Len(t, key, KeyLen*2)
	assert.Len(t, salt, SaltSize*2)
	assert.Regexp(t, "^[a-f0-9]+$", key)
	assert.Regexp(t, "^[a-f0-9]+$", salt)
}

func TestHashPassword_Empty(t *testing.T) {
	hash, err := HashPassword("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
	assert.Empty(t, hash)
}

func TestHashPassword_FreshSalt(t *testing.T) {
	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "каждый хеш должен использовать новую соль")
}

func TestVerifyPassword(t *testing.T) {
	stored, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		stored   string
		want     bool
	}{
		{name: "matching password", password: "s3cret-pass", stored: stored, want: true},
		{name: "wrong password", password: "s3cret-Pass", stored: stored, want: false},
		{name: "empty password", password: "", stored: stored, want: false},
		{name: "no separator", password: "s3cret-pass", stored: "abcdef", want: false},
		{name: "empty salt", password: "s3cret-pass", stored: "abcdef.", want: false},
		{name: "empty key", password: "s3cret-pass", stored: ".abcdef", want: false},
		{name: "bad key hex", password: "s3cret-pass", stored: "zz.abcdef", want: false},
		{name: "short key", password: "s3cret-pass", stored: "abcdef.zz", want: false},
		{name: "empty stored", password: "s3cret-pass", stored: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPassword(tt.password, tt.stored))
		})
	}
}

func TestVerifyPassword_TamperedKey(t *testing.T) {
	stored, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	key, salt, _ := strings.Cut(stored, ".")
	last := "00"
	if strings.HasSuffix(key, "00") {
		last = "ff"
	}
	tampered := key[:len(key)-2] + last + "." + salt
	assert.False(t, VerifyPassword("s3cret-pass", tampered))

	// Ключ неверной длины считается ошибкой разбора
	short := key[:len(key)/2] + "." + salt
	assert.False(t, VerifyPassword("s3cret-pass", short))
}

// legacyHash получен вне Go: scrypt(password, saltHexText, N=16384, r=8, p=1, 64),
// соль передается как текст hex строки
const legacyHash = "52d1669fa3f82ca95d497f7711d1fcb74df41ea61ea631c439946f0bb37c714c" +
	"c7ffdce30dc7e42fdb80ed29903d1eeea411329c297f0a2b2e83c91b8109ffa1" +
	".5f0c2e7a9b1d4c3e8a6f0b2d4e6a8c0e"

func TestVerifyPassword_ExistingHashFormat(t *testing.T) {
	assert.True(t, VerifyPassword("password123", legacyHash))
	assert.False(t, VerifyPassword("password124", legacyHash))
}

func TestHashPassword_SaltTextIsScryptInput(t *testing.T) {
	stored, err := HashPassword("password123")
	require.NoError(t, err)

	keyHex, saltHex, ok := strings.Cut(stored, ".")
	require.True(t, ok)

	key, err := scrypt.Key([]byte("password123"), []byte(saltHex), ScryptN, ScryptR, ScryptP, KeyLen)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(key), keyHex)
}
