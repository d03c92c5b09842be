package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/mcp"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Run as an MCP server over stdio",
		Flags: coreFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			sv, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer sv.repo.Close()

			return mcp.New(sv.chat).Run(ctx)
		},
	}
}
