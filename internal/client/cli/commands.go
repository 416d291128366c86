package cli

import (
	"context"
	"fmt"
)

// Run выполняет команду CLI
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "rewrite":
		return c.runRewrite(ctx, args)
	case "links":
		return c.runLinks(ctx)
	case "stats":
		return c.runStats(ctx, args)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}
