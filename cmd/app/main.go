package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/adrg/xdg"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/MikeYan01/List-memories/internal"
	pkgconfig "github.com/MikeYan01/List-memories/pkg/config"
)

var codePattern = regexp.MustCompile(`^[0-9]{4}$`)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runShare(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunShare(ctx, internal.WithConfig(cfg))
}

func runSync(ctx context.Context, cmd *cli.Command) error {
	code := cmd.Args().First()
	if !codePattern.MatchString(code) {
		return fmt.Errorf("usage: memories sync <code> (the 4 digits shown on the sharing device)")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunSync(ctx, code, cmd.Bool("replace"), internal.WithConfig(cfg))
}

func runFetch(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.Args().First()
	if addr == "" {
		return fmt.Errorf("usage: memories fetch <address>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunFetch(ctx, addr, cmd.Bool("replace"), internal.WithConfig(cfg))
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: memories import <file>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunImport(ctx, path, cmd.Bool("replace"), internal.WithConfig(cfg))
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: memories export <file>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunExport(ctx, path, internal.WithConfig(cfg))
}

func main() {
	replaceFlag := &cli.BoolFlag{
		Name:  "replace",
		Usage: "Replace existing records instead of appending",
	}

	defaultConfig := filepath.Join(xdg.ConfigHome, "list-memories", "config.yaml")

	cmd := &cli.Command{
		Name:  "memories",
		Usage: "Personal diary records with LAN sync between your devices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfig,
				Value:       defaultConfig,
				Sources:     cli.EnvVars("MEMORIES_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "share",
				Usage:  "Show a pairing code and serve records to devices on this network",
				Action: runShare,
			},
			{
				Name:      "sync",
				Usage:     "Find the device showing a pairing code and import its records",
				ArgsUsage: "<code>",
				Flags:     []cli.Flag{replaceFlag},
				Action:    runSync,
			},
			{
				Name:      "fetch",
				Usage:     "Import records directly from a device address, skipping discovery",
				ArgsUsage: "<address>",
				Flags:     []cli.Flag{replaceFlag},
				Action:    runFetch,
			},
			{
				Name:      "import",
				Usage:     "Import records from an exported bundle file",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{replaceFlag},
				Action:    runImport,
			},
			{
				Name:      "export",
				Usage:     "Export all records to a bundle file",
				ArgsUsage: "<file>",
				Action:    runExport,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
