package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/usecase/export"
)

func exportCommand() *cli.Command {
	var (
		cfg    config
		output string
		bucket string
		key    string
		show   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Local file path for the exported markdown",
			Destination: &output,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for remote export",
			Sources:     cli.EnvVars("TRUTHCAST_EXPORT_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "key",
			Usage:       "Object key for remote export (default exports/<record-id>.md)",
			Destination: &key,
		},
		&cli.BoolFlag{
			Name:        "show",
			Usage:       "Read the uploaded object back and print it",
			Destination: &show,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "export",
		Usage:     "Export a record as markdown to a file or bucket",
		ArgsUsage: "<record-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			id := c.Args().Get(0)
			if id == "" {
				return goerr.New("record ID is required")
			}
			if output == "" && bucket == "" {
				return goerr.New("either --output or --bucket is required")
			}

			repo, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			var opts []export.Option
			if bucket != "" {
				storage, err := adapter.NewStorage(ctx, bucket)
				if err != nil {
					return err
				}
				opts = append(opts, export.WithStorage(storage))
			}
			svc := export.New(repo, opts...)

			if output != "" {
				if err := svc.ExportToFile(ctx, model.RecordID(id), output); err != nil {
					return err
				}
				fmt.Fprintf(c.Root().Writer, "Exported to %s\n", output)
			}
			if bucket != "" {
				if key == "" {
					key = fmt.Sprintf("exports/%s.md", id)
				}
				if err := svc.ExportToStorage(ctx, model.RecordID(id), key); err != nil {
					return err
				}
				fmt.Fprintf(c.Root().Writer, "Uploaded to gs://%s/%s\n", bucket, key)

				if show {
					data, err := svc.ReadFromStorage(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.Root().Writer, "\n%s", data)
				}
			}
			return nil
		},
	}
}
