package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/affilink/internal/client/storage"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")

	defer c.printOtherServers(ctx)

	auth, err := c.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			c.io.Printf("Server: %s\n", c.serverURL)
			c.io.Println("Status: Not authenticated")
			c.io.Println("Run 'affilink login' to authenticate.")
			return nil
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	expiresAt := time.Unix(auth.ExpiresAt, 0).UTC()

	c.io.Printf("Server: %s\n", auth.ServerURL)
	c.io.Printf("Client: %s\n", auth.ClientID)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))

	if auth.Expired(c.now()) {
		c.io.Println("Status: Token expired, it will be refreshed on the next request")
		return nil
	}

	c.io.Println("Status: Authenticated")
	c.io.Printf("Time remaining: %s\n", expiresAt.Sub(c.now()).Round(time.Second))
	return nil
}

// serverLister реализуют хранилища, которые держат логины нескольких серверов
type serverLister interface {
	Servers(ctx context.Context) ([]string, error)
	ServerURL() string
}

func (c *Cli) printOtherServers(ctx context.Context) {
	lister, ok := c.store.(serverLister)
	if !ok {
		return
	}

	servers, err := lister.Servers(ctx)
	if err != nil {
		return
	}

	for _, s := range servers {
		if s != lister.ServerURL() {
			c.io.Printf("Also logged in: %s\n", s)
		}
	}
}
