package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/service/content"
	"github.com/m-mizutani/truthcast/pkg/usecase/generate"
)

func generateCommand() *cli.Command {
	var (
		cfg          config
		style        string
		platformsArg string
		withFAQ      bool
		faqCount     int64
		asJSON       bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "style",
			Usage:       "Clarification style (formal, neutral, friendly)",
			Value:       string(model.StyleNeutral),
			Destination: &style,
		},
		&cli.StringFlag{
			Name:        "platforms",
			Usage:       "Comma-separated publishing targets",
			Value:       "weibo,wechat,short_video",
			Destination: &platformsArg,
		},
		&cli.BoolFlag{
			Name:        "faq",
			Usage:       "Include FAQ entries in the bundle",
			Destination: &withFAQ,
		},
		&cli.IntFlag{
			Name:        "faq-count",
			Usage:       "Number of FAQ entries",
			Value:       content.DefaultFAQCount,
			Destination: &faqCount,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the bundle as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, coreFlags(&cfg)...)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Draft clarification, FAQ, and platform scripts for a record",
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

			platforms, err := parsePlatforms(platformsArg)
			if err != nil {
				return err
			}

			repo, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			// The model is optional here: without a Gemini project the
			// generators draft from templates.
			var gemini adapter.Gemini
			if cfg.geminiProject != "" {
				gemini, err = cfg.newGemini(ctx)
				if err != nil {
					return err
				}
			}

			svc := generate.New(repo, content.New(gemini), cfg.newAdmission())
			bundle, err := svc.Full(ctx, model.RecordID(id), generate.Request{
				Style:      model.NormalizeClarificationStyle(style),
				Platforms:  platforms,
				IncludeFAQ: withFAQ,
				FAQCount:   int(faqCount),
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			}
			printBundle(c, bundle)
			return nil
		},
	}
}

func parsePlatforms(arg string) ([]model.Platform, error) {
	var platforms []model.Platform
	for _, raw := range strings.Split(arg, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, ok := model.ParsePlatform(raw)
		if !ok {
			return nil, goerr.New("unknown platform: " + raw)
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}

func printBundle(c *cli.Command, bundle *model.ContentBundle) {
	w := c.Root().Writer

	fmt.Fprintf(w, "Content for record %s (risk: %s, style: %s)\n",
		bundle.BasedOn.RecordID, bundle.BasedOn.RiskLabel, bundle.BasedOn.Style)

	fmt.Fprintln(w, "\n== Clarification (short) ==")
	fmt.Fprintln(w, bundle.Clarification.Short)
	fmt.Fprintln(w, "\n== Clarification (medium) ==")
	fmt.Fprintln(w, bundle.Clarification.Medium)
	fmt.Fprintln(w, "\n== Clarification (long) ==")
	fmt.Fprintln(w, bundle.Clarification.Long)

	if len(bundle.FAQ) > 0 {
		fmt.Fprintln(w, "\n== FAQ ==")
		for _, item := range bundle.FAQ {
			fmt.Fprintf(w, "Q: %s\nA: %s\n\n", item.Question, item.Answer)
		}
	}

	for _, script := range bundle.Scripts {
		fmt.Fprintf(w, "\n== Script: %s ==\n", script.Platform)
		fmt.Fprintln(w, script.Content)
		if len(script.Hashtags) > 0 {
			fmt.Fprintln(w, "Hashtags:", strings.Join(script.Hashtags, " "))
		}
		for _, tip := range script.Tips {
			fmt.Fprintln(w, "Tip:", tip)
		}
	}
}
