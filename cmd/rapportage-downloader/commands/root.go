package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"rapportage-downloader/internal/components/telemetry"
	"rapportage-downloader/internal/configutil"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"rapportage-downloader/internal/sink"
	"strings"

	"github.com/spf13/cobra"
)

const serviceName = "rapportage-downloader"

var (
	flagMail     string
	flagPassword string
	flagOutput   string
	flagConfig   string
	flagVerbose  bool
)

var (
	cfg Config
	tel telemetry.API = telemetry.SlogAPI{}
	otl telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "rapportage-downloader",
	Short: "rapportage-downloader downloads reports from the DB Energie portal.",
	// errors are printed once by ExecuteContext
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(flagVerbose)

		loaded, err := loadConfig(flagConfig, !cmd.Flags().Changed("config"), Config{
			Mail:     flagMail,
			Password: flagPassword,
			Output:   flagOutput,
		})
		if err != nil {
			return err
		}
		cfg = loaded

		otl, err = telemetry.Setup(cmd.Context(), serviceName, cfg.Telemetry)
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}
		if otl.MeterProvider != nil {
			telemetry.InstrumentPerfStats(cmd.Context())
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagMail, "mail", "m", "", "The email to log in at DB Energie with.")
	flags.StringVarP(&flagPassword, "password", "p", "", "The password to log in at DB Energie with.")
	flags.StringVarP(&flagOutput, "output", "o", "", "The directory, http(s) url or smtp url reports are written to.")
	flags.StringVar(&flagConfig, "config", "config.json5", "The config file, config.local.json5 next to it overrides it. By default it is searched for upwards from the working directory.")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug information.")
}

// loadConfig reads the config at path, values given in flags win over it. With search set
// the working directory and its parents are searched for path and a missing config is fine.
func loadConfig(path string, search bool, flags Config) (Config, error) {
	var loaded Config
	var err error
	if search {
		loaded, err = configutil.ReadOptional[Config](path)
	} else {
		loaded, err = configutil.ReadConfig[Config](path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	err = configutil.Override(&loaded, flags)
	if err != nil {
		return Config{}, fmt.Errorf("apply flags: %w", err)
	}
	return loaded, nil
}

// requireSettings fails with the missing flags and lets cobra print the usage, afterwards
// errors are runtime failures and the usage is silenced.
func requireSettings(cmd *cobra.Command, needOutput bool) error {
	missing := cfg.missingFlags(needOutput)
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	cmd.SilenceUsage = true
	return nil
}

func login(ctx context.Context) (*dbenergie.Client, error) {
	var output telemetry.MessageOutput
	if cfg.HttpDumpDir != "" {
		dump, err := telemetry.NewFilesystemOutput(cfg.HttpDumpDir)
		if err != nil {
			return nil, fmt.Errorf("create http dump dir: %w", err)
		}
		output = dump
	}

	client, err := dbenergie.Login(ctx, dbenergie.Options{
		BaseUrl:          cfg.BaseUrl,
		Mail:             cfg.Mail,
		Password:         cfg.Password,
		Account:          cfg.Account,
		RateLimit:        cfg.RateLimit,
		CloudflareBypass: cfg.CloudflareBypass,
		MessageOutput:    output,
		Telemetry:        tel,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("logged in", "mail", cfg.Mail)
	return client, nil
}

func outputSink() (sink.Sink, error) {
	return sink.New(cfg.Output, tel)
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)

	shutdownErr := otl.Shutdown(context.Background())
	if shutdownErr != nil {
		slog.Warn("failed to flush telemetry", "err", shutdownErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
