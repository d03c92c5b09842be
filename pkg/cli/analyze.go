package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func analyzeCommand() *cli.Command {
	var (
		cfg  config
		file string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "Path to a text file to analyze instead of argument text",
			Destination: &file,
		},
	}
	flags = append(flags, coreFlags(&cfg)...)

	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run a one-shot analysis",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return goerr.Wrap(err, "failed to read input file", goerr.V("path", file))
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return goerr.New("no input: pass text as argument or use --file")
			}

			sv, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer sv.repo.Close()

			msg, err := sv.chat.RunText(ctx, "analyze "+text, "")
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, msg.Content)
			if len(msg.References) > 0 {
				fmt.Fprintln(c.Root().Writer, "\nReferences:")
				for _, ref := range msg.References {
					fmt.Fprintf(c.Root().Writer, "  - %s (%s)\n", ref.Title, ref.Href)
				}
			}
			return nil
		},
	}
}
