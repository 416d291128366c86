package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/iudanet/affilink/internal/client/storage"
	"github.com/iudanet/affilink/pkg/api"
)

// DefaultClientID client_id сервера по умолчанию
const DefaultClientID = "affiliate-link-manager-client"

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	clientID := fs.String("client-id", DefaultClientID, "OAuth client id")
	secret := fs.String("secret", "", "OAuth client secret (not recommended, use env var or file)")
	secretFile := fs.String("secret-file", "", "Path to file containing client secret")
	discover := fs.Bool("discover", false, "Fetch client credentials from /api/oauth-credentials")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid login arguments: %w", err)
	}

	id := *clientID
	var clientSecret string

	if *discover {
		creds, err := c.apiClient.OAuthCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to discover client credentials: %w", err)
		}
		id, clientSecret = creds.ClientID, creds.ClientSecret
	} else {
		var err error
		clientSecret, err = c.getClientSecret(Secrets{FromFile: *secretFile, FromArgs: *secret})
		if err != nil {
			return err
		}
	}

	tokens, err := c.apiClient.Authenticate(ctx, id, clientSecret)
	if err != nil {
		return err
	}

	if err := c.saveTokens(ctx, id, clientSecret, tokens); err != nil {
		return err
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("Client: %s\n", id)
	c.io.Printf("Access token expires in: %d seconds\n", tokens.ExpiresIn)
	return nil
}

func (c *Cli) saveTokens(ctx context.Context, clientID, clientSecret string, tokens *api.TokenResponse) error {
	auth := &storage.AuthData{
		ServerURL:    c.serverURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenPair:    c.tokenPair(tokens, ""),
	}

	if err := c.store.SaveAuth(ctx, auth); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}
	return nil
}

// tokenPair переводит ответ сервера в абсолютное время истечения.
// Если сервер не вернул новый refresh token, остается previousRefresh.
func (c *Cli) tokenPair(tokens *api.TokenResponse, previousRefresh string) storage.TokenPair {
	refresh := tokens.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	return storage.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: refresh,
		Scope:        tokens.Scope,
		ExpiresAt:    c.now().Unix() + tokens.ExpiresIn,
	}
}

func (c *Cli) runLogout(ctx context.Context) error {
	if err := c.store.DeleteAuth(ctx); err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			c.io.Println("Not logged in")
			return nil
		}
		return fmt.Errorf("failed to delete auth data: %w", err)
	}

	c.io.Println("✓ Logged out")
	return nil
}
