package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/thor/internal/pipeline"
	"github.com/ajitpratap0/thor/pkg/config"
	"github.com/ajitpratap0/thor/pkg/destinations"
	"github.com/ajitpratap0/thor/pkg/logger"
	"github.com/ajitpratap0/thor/pkg/metrics"
	"github.com/ajitpratap0/thor/pkg/models"
	"github.com/ajitpratap0/thor/pkg/observability"
	"github.com/ajitpratap0/thor/pkg/sites"

	// Import all available sites to register them
	_ "github.com/ajitpratap0/thor/pkg/sites/autotrader"
	_ "github.com/ajitpratap0/thor/pkg/sites/craigslist"
	_ "github.com/ajitpratap0/thor/pkg/sites/ksl"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "thor",
		Short: "Thor - vehicle listing acquisition",
		Long: `Thor searches vehicle marketplaces for a task's search terms, fetches
the details of listings it has not seen before and writes normalized
listings to the configured destinations.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Thor v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available sites",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Available Sites:")
			for _, name := range sites.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
			}
		},
	})

	root.AddCommand(newCheckCommand(), newRunCommand(), newConfigCommand())
	return root
}

type commonFlags struct {
	configFile string
	userFile   string
	sites      []string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to thor.yaml (optional)")
	cmd.Flags().StringVarP(&f.userFile, "user", "u", "", "Path to the user descriptor YAML (required)")
	cmd.Flags().StringSliceVarP(&f.sites, "site", "s", nil, "Site to scrape; repeat for several (required)")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("site")
}

// prepare loads the configuration, the user and the site adapters. Every
// error it returns is a configuration error.
func (f *commonFlags) prepare(cmd *cobra.Command) (*config.Config, *models.User, []sites.Adapter, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := loadConfig(f.configFile, v)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, nil, nil, err
	}
	log := logger.Get()

	var user models.User
	if err := config.Load(f.userFile, &user); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid user %s: %w", f.userFile, err)
	}

	adapters := make([]sites.Adapter, 0, len(f.sites))
	for _, name := range f.sites {
		adapter, err := sites.New(name, sites.OptionsFrom(cfg.Site(name), log))
		if err != nil {
			return nil, nil, nil, err
		}
		adapters = append(adapters, adapter)
	}
	return cfg, &user, adapters, nil
}

func newConfigCommand() *cobra.Command {
	var configFile, file string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write the effective configuration",
		Long: `Config resolves thor.yaml, THOR_* environment variables and flags the
way run does, validates the result and writes it as YAML.`,
		Example: `  thor config --config thor.yaml --file effective.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configFile, v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(file, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to thor.yaml (optional)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Where to write the configuration (required)")
	cmd.Flags().String("out", "", "Output directory override")
	cmd.Flags().String("log-level", "", "Log level override")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCheckCommand() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Check that a user's session can reach a site",
		Example: `  thor check --site ksl --user user.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, user, adapters, err := flags.prepare(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			runner := pipeline.NewRunner(cfg, logger.Get())
			for _, adapter := range adapters {
				verdict := runner.Check(ctx, adapter, user)
				if verdict.Blocked {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: blocked (%s)\n", adapter.Website(), verdict.Error.ErrorDescription)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", adapter.Website())
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCommand() *cobra.Command {
	var flags commonFlags
	var taskFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape one or more sites for a task",
		Long: `Run searches each site for the task's terms, fetches details for new
listings and writes the results to every configured destination. Sites run
concurrently, each with its own session.

A blocked site is reported, not failed: the command exits non-zero only
when the configuration cannot be loaded.`,
		Example: `  thor run --site craigslist --site ksl --task task.yaml --user user.yaml --out ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, user, adapters, err := flags.prepare(cmd)
			if err != nil {
				return err
			}
			var task models.Task
			if err := config.Load(taskFile, &task); err != nil {
				return fmt.Errorf("invalid task %s: %w", taskFile, err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSites(ctx, cmd, cfg, &task, user, adapters)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&taskFile, "task", "t", "", "Path to the task descriptor YAML (required)")
	cmd.Flags().StringP("out", "o", "", "Directory for jsonl and csv output")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func runSites(ctx context.Context, cmd *cobra.Command, cfg *config.Config, task *models.Task, user *models.User, adapters []sites.Adapter) error {
	log := logger.Get()

	shutdown, err := observability.Init(ctx, cfg.Observability.Tracing, version)
	if err != nil {
		return fmt.Errorf("invalid tracing configuration: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	dest, err := destinations.Open(ctx, cfg.Outputs, log)
	if err != nil {
		return fmt.Errorf("failed to open destinations: %w", err)
	}
	defer func() {
		if err := dest.Close(); err != nil {
			log.Warn("failed to close destinations", zap.Error(err))
		}
	}()

	filter := pipeline.AcceptAll
	if dest.Postgres != nil {
		filter = dest.Postgres
	}

	runner := pipeline.NewRunner(cfg, log)
	results := make([]*models.Result, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			timer := pipeline.NewProcessTimer()
			result := runner.Run(gctx, adapter, task, user, filter, timer)
			results[i] = result

			if err := dest.Write(gctx, result); err != nil {
				log.Error("failed to write results", zap.String("site", result.Site), zap.Error(err))
			}
			activity := timer.Finish()
			log.Info("run finished",
				zap.String("site", result.Site),
				zap.Bool("blocked", result.Blocked()),
				zap.Int("listings", len(result.Listings)),
				zap.Int("errors", len(result.Errors.ErrorData)),
				zap.Duration("active", activity.Active))
			return nil
		})
	}
	_ = g.Wait()

	if path := cfg.Observability.MetricsFile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	for _, result := range results {
		switch {
		case result.Blocked():
			fmt.Fprintf(out, "%s: blocked, %d errors\n", result.Site, len(result.Errors.ErrorData))
		default:
			fmt.Fprintf(out, "%s: %d search results, %d new listings, %d errors\n",
				result.Site, len(result.SearchResults), len(result.Listings), len(result.Errors.ErrorData))
		}
	}
	return nil
}
