package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/repolens/repolens/analysis"
	"github.com/repolens/repolens/analysis/metrics"
	"github.com/repolens/repolens/internal/profile"
	"github.com/repolens/repolens/internal/version"
	"github.com/repolens/repolens/server"
	"github.com/repolens/repolens/store"
	"github.com/repolens/repolens/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "repolens",
	Short: "Code analysis service. Ingest a repository, run the analysis agents and serve reports.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Load .env from the working directory when present; process
		// managers inject environment variables directly.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := buildProfile()
		if err != nil {
			return err
		}
		setupLogger(instanceProfile)

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return err
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		defer storeInstance.Close()

		ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
		defer stop()

		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return err
		}

		exporter := metrics.NewExporter(metrics.Config{})
		svc, err := analysis.NewService(instanceProfile, storeInstance, exporter)
		if err != nil {
			slog.Error("failed to create analysis service", "error", err)
			return err
		}

		s, err := server.NewServer(instanceProfile, storeInstance, svc, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return err
		}

		printGreetings(instanceProfile)
		return s.Start(ctx)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source>",
	Short: "Run one analysis over a local path or clone URL and print the report as markdown.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceProfile, err := buildProfile()
		if err != nil {
			return err
		}

		// One-shot mode: no persistence, no metrics endpoint.
		svc, err := analysis.NewService(instanceProfile, nil, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
		defer stop()

		rep, err := svc.Analyze(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Print(rep.Markdown())
		return nil
	},
}

// setupLogger switches to structured JSON output in prod; dev keeps the
// human-readable text handler.
func setupLogger(p *profile.Profile) {
	if p.IsDev() {
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
}

func buildProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("repolens")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(analyzeCmd)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("RepoLens %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Access RepoLens at: http://localhost:%d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
