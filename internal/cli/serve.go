package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/bricklayers/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		redisURL   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload and processing API",
		Long: `Run the upload and processing API.

Settings come from the defaults, then --config (TOML), then BRICKLAYERS_*
environment variables, then the flags below. With --redis, job records and
processed outputs are kept in Redis so several instances can share them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("redis") {
				cfg.RedisURL = redisURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runServe(cmd.Context(), cfg, cmd.Flags().Changed("verbose"))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "server config file (TOML)")
	cmd.Flags().StringVar(&host, "host", "", "listen host (default 0.0.0.0)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default 8000)")
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL, e.g. redis://localhost:6379/0")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cfg server.Config, verbose bool) error {
	if !verbose {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		c.SetLogLevel(level)
	}

	srv, closeFn, err := server.Open(ctx, cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer func() {
		if err := closeFn(); err != nil {
			c.Logger.Error("shutdown", "err", err)
		}
	}()

	printInfo("Serving on %s", StyleValue.Render("http://"+cfg.Addr()))
	printDetail("API: %s  uploads: %s  outputs: %s", cfg.APIPrefix, cfg.UploadDir, cfg.OutputDir)
	return srv.Run(ctx)
}
