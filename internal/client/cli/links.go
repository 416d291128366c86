package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	clientapi "github.com/iudanet/affilink/internal/client/api"
	"github.com/iudanet/affilink/internal/client/storage"
)

// DefaultSource метка источника для ссылок, переписанных из CLI
const DefaultSource = "cli"

// withToken выполняет вызов с действующим access token.
// Просроченный токен обновляется заранее, ответ 401 приводит к одной попытке обновления.
func (c *Cli) withToken(ctx context.Context, call func(accessToken string) error) error {
	auth, err := c.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return fmt.Errorf("not authenticated. Please run 'affilink login' first")
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	if auth.Expired(c.now()) {
		if auth, err = c.refresh(ctx, auth); err != nil {
			return err
		}
	}

	err = call(auth.AccessToken)
	if !errors.Is(err, clientapi.ErrUnauthorized) {
		return err
	}

	if auth, err = c.refresh(ctx, auth); err != nil {
		return err
	}
	return call(auth.AccessToken)
}

// refresh обменивает refresh token и сохраняет новую пару.
// Использованный refresh token сервер больше не примет, поэтому пара сохраняется сразу.
func (c *Cli) refresh(ctx context.Context, auth *storage.AuthData) (*storage.AuthData, error) {
	tokens, err := c.apiClient.Refresh(ctx, auth.ClientID, auth.ClientSecret, auth.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("session expired, please run 'affilink login' again: %w", err)
	}

	pair := c.tokenPair(tokens, auth.RefreshToken)
	if err := c.store.RotateTokens(ctx, pair); err != nil {
		return nil, fmt.Errorf("failed to save rotated tokens: %w", err)
	}

	rotated := *auth
	rotated.TokenPair = pair
	return &rotated, nil
}

func (c *Cli) runRewrite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rewrite", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	source := fs.String("source", DefaultSource, "Source label recorded with the link")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid rewrite arguments: %w", err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: affilink rewrite [--source S] <url>...")
	}

	for _, rawURL := range fs.Args() {
		err := c.withToken(ctx, func(accessToken string) error {
			rewritten, err := c.apiClient.Rewrite(ctx, accessToken, rawURL, *source)
			if err != nil {
				return err
			}
			c.io.Println(rewritten)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", rawURL, err)
		}
	}

	return nil
}

func (c *Cli) runLinks(ctx context.Context) error {
	return c.withToken(ctx, func(accessToken string) error {
		links, err := c.apiClient.Links(ctx, accessToken)
		if err != nil {
			return err
		}

		if len(links) == 0 {
			c.io.Println("No links yet")
			return nil
		}

		for _, l := range links {
			c.io.Printf("%s  %-12s %s -> %s\n",
				l.CreatedAt.UTC().Format(time.RFC3339), l.Source, l.OriginalURL, l.RewrittenURL)
		}
		c.io.Printf("\nTotal: %d\n", len(links))
		return nil
	})
}

func (c *Cli) runStats(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: affilink stats <type> <timeStart> <timeEnd>")
	}

	return c.withToken(ctx, func(accessToken string) error {
		report, err := c.apiClient.Stats(ctx, accessToken, args[0], args[1], args[2])
		if err != nil {
			return err
		}

		if _, err := c.io.Write(append(report, '\n')); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	})
}
