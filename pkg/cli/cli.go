package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "truthcast",
		Usage: "Fact-checking chat pipeline",
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			analyzeCommand(),
			listCommand(),
			showCommand(),
			generateCommand(),
			exportCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
