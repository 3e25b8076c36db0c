package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/scipsync/scipsync/internal"
	pkgconfig "github.com/scipsync/scipsync/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	cwd := cmd.String("cwd")
	if cwd == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working dir: %w", err)
		}
	}

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithRoot(cwd),
		internal.WithTargets(cmd.Args().Slice()),
		internal.WithFile(cmd.String("filepath")),
		internal.WithWatch(cmd.Bool("watch")),
	}
	if cmd.IsSet("depth") {
		opts = append(opts, internal.WithDepth(int(cmd.Int("depth"))))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("sync error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "scipsync",
		Usage:     "Incrementally sync the code-intelligence index cache for a set of build targets",
		ArgsUsage: "[targets...]",
		Action:    run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("SCIPSYNC_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "cwd",
				Usage: "Workspace root where build commands run (defaults to the current directory)",
			},
			&cli.StringFlag{
				Name:  "filepath",
				Usage: "Sync the index for a single source file via its recorded manifest",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Dependency graph depth for index generation",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Stay running and re-index workspace files as they change",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
