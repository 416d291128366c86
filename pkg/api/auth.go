package api

import "github.com/iudanet/affilink/internal/models"

// CredentialsRequest представляет запрос на регистрацию или вход
type CredentialsRequest struct {
	Username string `json:"username"` // username пользователя
	Password string `json:"password"` // пароль в открытом виде (хешируется на сервере)
}

// UserResponse представляет ответ на успешную регистрацию или вход
type UserResponse struct {
	User    *models.User `json:"user"`    // данные пользователя (без хеша пароля)
	Message string       `json:"message"` // сообщение об успехе
}

// MessageResponse представляет ответ, содержащий только сообщение
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentityResponse возвращается GET /api/user для bearer-клиентов
type IdentityResponse struct {
	ID int64 `json:"id"`
}

// ClientCredentialsRequest представляет запрос POST /api/auth
type ClientCredentialsRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	AccessToken  string `json:"access_token"`            // opaque access token
	RefreshToken string `json:"refresh_token,omitempty"` // refresh token для POST /api/token
	TokenType    string `json:"token_type"`              // всегда "Bearer"
	Scope        string `json:"scope"`                   // scopes через пробел
	ExpiresIn    int64  `json:"expires_in"`              // время жизни access token в секундах
}

// OAuthCredentialsResponse описывает параметры подключения OAuth клиента
type OAuthCredentialsResponse struct {
	ClientID            string   `json:"client_id"`
	ClientSecret        string   `json:"client_secret"`
	AuthorizationURL    string   `json:"authorization_url"`
	TokenURL            string   `json:"token_url"`
	TokenExchangeMethod string   `json:"token_exchange_method"`
	Scopes              []string `json:"scopes"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
