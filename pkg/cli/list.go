package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
	"github.com/m-mizutani/truthcast/pkg/usecase/export"
)

func listCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of records to show",
			Value:       chat.DefaultListLimit,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List recent analysis records",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			repo, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			rows, err := repo.ListRecords(ctx, chat.ClampLimit(int(limit)))
			if err != nil {
				return goerr.Wrap(err, "failed to list records")
			}

			if len(rows) == 0 {
				fmt.Fprintln(c.Root().Writer, "No records.")
				return nil
			}
			for _, row := range rows {
				fmt.Fprintf(c.Root().Writer, "%s  %s  %s(%.2f)  %s\n",
					row.ID, row.CreatedAt.Format("2006-01-02 15:04:05"),
					row.RiskLabel, row.RiskScore, row.InputPreview)
			}
			return nil
		},
	}
}

func showCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show one record as markdown",
		ArgsUsage: "<record-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			id := c.Args().Get(0)
			if id == "" {
				return goerr.New("record ID is required")
			}

			repo, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			record, err := repo.GetRecord(ctx, model.RecordID(id))
			if err != nil {
				return goerr.Wrap(err, "failed to load record", goerr.V("id", id))
			}

			return export.Render(os.Stdout, record)
		},
	}
}
