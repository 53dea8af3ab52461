package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tasnim.dev/elbctl/internal/config"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	profile    string
	region     string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd returns the elbctl root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "elbctl",
		Short:         "Reconcile a Classic Load Balancer against declared configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := opts.logLevel
			if level == "" {
				level = cfg.Log.Level
			}
			setupLogging(os.Stderr, level, cfg.Log.JSON, cfg.Log.ColorsEnabled())
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default ~/.config/elbctl/config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "AWS profile")
	cmd.PersistentFlags().StringVarP(&opts.region, "region", "r", "", "AWS region or availability zone")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newStartCmd(opts),
		newStopCmd(opts),
		newReloadCmd(opts),
		newDeleteCmd(opts),
		newDescribeCmd(opts),
		newListCmd(opts),
		newRunCmd(opts),
	)

	return cmd
}

func setupLogging(out io.Writer, level string, useJSON, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		}).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
