package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ucdcanvas/internal"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/mcpserver"
	"github.com/starford/ucdcanvas/internal/render"
	"github.com/starford/ucdcanvas/internal/report"
	"github.com/starford/ucdcanvas/internal/storage"
	pkgconfig "github.com/starford/ucdcanvas/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openStack opens the shared components for a one-shot command. Logs go to
// stderr so stdout stays free for command output.
func openStack(ctx context.Context, cmd *cli.Command) (*internal.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	stack, err := internal.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := stack.Sync(ctx, logger); err != nil {
		logger.Warn("index sync failed", slog.String("error", err.Error()))
	}
	return stack, nil
}

func keyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Project id", Required: true},
		&cli.StringFlag{Name: "stage", Aliases: []string{"s"}, Usage: "Stage id", Required: true},
		&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "Document id", Required: true},
	}
}

func keyFrom(cmd *cli.Command) (storage.Key, error) {
	k := storage.Key{
		ProjectID:  cmd.String("project"),
		StageID:    cmd.String("stage"),
		DocumentID: cmd.String("document"),
	}
	return k, k.Validate()
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	stack, err := openStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.Close()
	return mcpserver.New(stack.Sessions, stack.Docs).ServeStdio()
}

func exportPNG(ctx context.Context, cmd *cli.Command) error {
	key, err := keyFrom(cmd)
	if err != nil {
		return err
	}
	stack, err := openStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.Close()

	doc, found, err := stack.Docs.Load(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("document %s not found", key)
	}

	var buf bytes.Buffer
	if err := render.PNG(&buf, doc.Snapshot(), stack.Docs.Registry()); err != nil {
		return err
	}
	out := cmd.String("out")
	if out == "" {
		out = key.String() + ".png"
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", out)
	return nil
}

func inspect(ctx context.Context, cmd *cli.Command) error {
	key, err := keyFrom(cmd)
	if err != nil {
		return err
	}
	stack, err := openStack(ctx, cmd)
	if err != nil {
		return err
	}
	defer stack.Close()

	doc, found, err := stack.Docs.Load(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("document %s not found", key)
	}
	return report.Document(os.Stdout, key, doc.Snapshot(), stack.Docs.Registry())
}

func templates(_ context.Context, _ *cli.Command) error {
	return report.Templates(os.Stdout, blocks.Default())
}

func main() {
	cmd := &cli.Command{
		Name:   "ucdcanvas",
		Usage:  "Block canvas editor for user-centered design requirements documents",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP service (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the canvas tools over MCP on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:  "export",
				Usage: "Render a stored document to PNG",
				Flags: append(keyFlags(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default <storage id>.png)"},
				),
				Action: exportPNG,
			},
			{
				Name:   "inspect",
				Usage:  "Print a summary of a stored document",
				Flags:  keyFlags(),
				Action: inspect,
			},
			{
				Name:   "templates",
				Usage:  "List the block palette",
				Action: templates,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
