package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/iudanet/affilink/internal/client/iocli"
	"github.com/iudanet/affilink/internal/client/storage"
	"github.com/iudanet/affilink/internal/models"
	"github.com/iudanet/affilink/pkg/api"
)

// ClientSecretEnv переменная окружения с client_secret
const ClientSecretEnv = "AFFILINK_CLIENT_SECRET"

// APIClient описывает вызовы сервера, которые использует CLI
type APIClient interface {
	OAuthCredentials(ctx context.Context) (*api.OAuthCredentialsResponse, error)
	Authenticate(ctx context.Context, clientID, clientSecret string) (*api.TokenResponse, error)
	Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*api.TokenResponse, error)
	Rewrite(ctx context.Context, accessToken, rawURL, source string) (string, error)
	Links(ctx context.Context, accessToken string) ([]models.Link, error)
	Stats(ctx context.Context, accessToken, reportType, timeStart, timeEnd string) (json.RawMessage, error)
}

// Secrets источники client_secret, кроме переменной окружения и prompt
type Secrets struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	apiClient APIClient
	store     storage.AuthStorage
	io        iocli.IO
	now       func() time.Time
	serverURL string
}

// New создает CLI поверх API клиента и локального хранилища токенов
func New(apiClient APIClient, store storage.AuthStorage, io iocli.IO, serverURL string) *Cli {
	return &Cli{
		apiClient: apiClient,
		store:     store,
		io:        io,
		now:       time.Now,
		serverURL: serverURL,
	}
}

// getClientSecret retrieves client secret from various sources with priority:
// 1. Environment variable AFFILINK_CLIENT_SECRET
// 2. File specified in secrets.FromFile
// 3. Command-line parameter secrets.FromArgs
// 4. Interactive prompt (fallback)
func (c *Cli) getClientSecret(secrets Secrets) (string, error) {
	if envSecret := os.Getenv(ClientSecretEnv); envSecret != "" {
		return envSecret, nil
	}

	if secrets.FromFile != "" {
		content, err := os.ReadFile(secrets.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		// Убираем trailing newline/whitespace
		secret := strings.TrimSpace(string(content))
		if secret == "" {
			return "", fmt.Errorf("secret file is empty")
		}
		return secret, nil
	}

	if secrets.FromArgs != "" {
		return secrets.FromArgs, nil
	}

	secret, err := c.io.ReadPassword("Client secret: ")
	if err != nil {
		return "", fmt.Errorf("failed to read client secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("client secret cannot be empty")
	}

	return secret, nil
}

func PrintUsage(io iocli.IO) {
	io.Println("Affilink Client")
	io.Println()
	io.Println("Usage:")
	io.Println("  affilink [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  --version                  Show version information")
	io.Println("  --server URL               Server URL (default: http://localhost:5000)")
	io.Println("  --db PATH                  Path to local token database (default: affilink-client.db)")
	io.Println()
	io.Println("Client Secret Priority (highest to lowest):")
	io.Println("  1. AFFILINK_CLIENT_SECRET environment variable")
	io.Println("  2. login --secret-file (file path)")
	io.Println("  3. login --secret (command line)")
	io.Println("  4. Interactive prompt (fallback)")
	io.Println()
	io.Println("Commands:")
	io.Println("  login [--client-id ID] [--discover]   Obtain an access token")
	io.Println("  logout                                Forget stored tokens")
	io.Println("  status                                Show authentication status")
	io.Println("  rewrite [--source S] <url>...         Rewrite urls into affiliate links")
	io.Println("  links                                 List rewritten links")
	io.Println("  stats <type> <timeStart> <timeEnd>    Show provider report (clicks, transactions, ...)")
	io.Println()
	io.Println("Examples:")
	io.Println("  affilink login --discover")
	io.Println("  affilink rewrite https://www.amazon.com/dp/B000000000")
	io.Println("  affilink stats clicks 2024-01-01 2024-01-31")
}
