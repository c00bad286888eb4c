package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/domain/fault"
	"github.com/kailas-cloud/searchgate/internal/usecase/searchtool"
	"github.com/kailas-cloud/searchgate/internal/validation"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run one upstream search with the configured deployment and print JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Query string; positional arg is a fallback",
			},
			&cli.IntFlag{
				Name:    "rows",
				Aliases: []string{"r"},
				Usage:   "Number of documents to return (1-100, default 10)",
			},
			&cli.IntFlag{
				Name:  "start",
				Usage: "Result offset",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Ranking model; replaces the configured default",
			},
			&cli.StringSliceFlag{
				Name:  "fq",
				Usage: "Filter query; repeatable, replaces the configured defaults",
			},
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := zap.NewNop()
	client, err := newUpstreamClient(cfg, logger)
	if err != nil {
		return err
	}
	validator, err := validation.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	svc := searchtool.New(client, validator, cfg.Upstream.APIToken)

	in := searchtool.Input{Query: strings.TrimSpace(c.String("query"))}
	if in.Query == "" && c.NArg() > 0 {
		in.Query = strings.TrimSpace(c.Args().First())
	}
	if c.IsSet("rows") {
		rows := c.Int("rows")
		in.Rows = &rows
	}
	if c.IsSet("start") {
		start := c.Int("start")
		in.Start = &start
	}
	if c.IsSet("model") {
		model := c.String("model")
		in.Model = &model
	}
	if c.IsSet("fq") {
		in.Fq = c.StringSlice("fq")
	}

	if err := validator.Validate(in); err != nil {
		return formatSearchError(err)
	}

	out, err := svc.Search(c.Context, in)
	if err != nil {
		return formatSearchError(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"query":     out.Query,
		"numFound":  out.Result.Total(),
		"start":     out.Start,
		"rows":      out.Rows,
		"docs":      out.Result.Documents(),
		"rawTookMs": out.Result.TookMs(),
	})
}

func formatSearchError(err error) error {
	var ve *validation.Error
	if errors.As(err, &ve) {
		return ve
	}
	fe := fault.Classify(err)
	return cli.Exit(fmt.Sprintf("%s: %s", fe.Category, fe.Message), 2)
}
