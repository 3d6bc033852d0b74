package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/config"
	"github.com/autoqliq/autoqliq/pkg/driver"
	seleniumdriver "github.com/autoqliq/autoqliq/pkg/driver/selenium"
	"github.com/autoqliq/autoqliq/pkg/logger"
	"github.com/autoqliq/autoqliq/pkg/metrics"
	"github.com/autoqliq/autoqliq/pkg/scheduler"
	"github.com/autoqliq/autoqliq/pkg/storage"
	"github.com/autoqliq/autoqliq/pkg/workflow"
)

// app bundles the wired components the subcommands share.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	workflows *storage.FileWorkflowRepository
	creds     *storage.FileCredentialStore
	drivers   *driver.Manager
	collector *metrics.Collector
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "autoqliq",
		Short:         "Run and schedule declarative browser workflows",
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newRunCommand(&configPath),
		newValidateCommand(&configPath),
		newWorkflowsCommand(&configPath),
		newScheduleCommand(&configPath),
	)
	return root
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	appLogger := logger.FromSettings(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(appLogger)

	workflows, err := storage.NewFileWorkflowRepository(cfg.WorkflowsPath, action.NewFactory(), appLogger)
	if err != nil {
		return nil, err
	}
	creds := storage.NewFileCredentialStore(cfg.CredentialsPath)
	collector := metrics.NewCollector()
	drivers := driver.NewManager(
		seleniumdriver.NewFactory(appLogger),
		cfg.DriverPath,
		driver.RetryPolicy{},
		appLogger,
	)
	return &app{
		cfg:       cfg,
		logger:    appLogger,
		workflows: workflows,
		creds:     creds,
		drivers:   drivers,
		collector: collector,
	}, nil
}

func (a *app) newRunner(strategy workflow.ErrorStrategy, opts driver.Options) *workflow.Runner {
	return workflow.NewRunner(workflow.RunnerConfig{
		DriverManager: a.drivers,
		DriverOptions: opts,
		Credentials:   a.creds,
		Workflows:     a.workflows,
		Strategy:      strategy,
		Metrics:       a.collector,
		Logger:        a.logger,
	})
}

func newRunCommand(configPath *string) *cobra.Command {
	var browser, strategyName string
	var headless bool

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a stored workflow once and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.workflows.Close()

			strategy, err := workflow.ParseErrorStrategy(strategyName)
			if err != nil {
				return err
			}
			opts := a.cfg.DriverOptions()
			if browser != "" {
				opts.Browser = driver.BrowserType(browser)
			}
			if cmd.Flags().Changed("headless") {
				opts.Headless = headless
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := a.newRunner(strategy, opts).RunByName(ctx, args[0])
			fmt.Fprintln(cmd.OutOrStdout(), log.DetailedReport())
			if log.FinalStatus != workflow.StatusSuccess {
				return fmt.Errorf("workflow finished with status %s", log.FinalStatus)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&browser, "browser", "", "browser to drive (chrome, firefox, edge, safari)")
	cmd.Flags().StringVar(&strategyName, "strategy", "", "error strategy (STOP_ON_ERROR or CONTINUE_ON_ERROR)")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")
	return cmd
}

func newValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Load a stored workflow and validate every action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.workflows.Close()

			actions, err := a.workflows.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := action.ValidateAll(actions); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid (%d actions)\n", args[0], len(actions))
			return nil
		},
	}
}

func newWorkflowsCommand(configPath *string) *cobra.Command {
	workflows := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect stored workflows",
	}
	workflows.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored workflow names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.workflows.Close()

			names, err := a.workflows.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	return workflows
}

func newScheduleCommand(configPath *string) *cobra.Command {
	var triggerJSON, credential string

	cmd := &cobra.Command{
		Use:   "schedule <workflow>",
		Short: "Schedule a workflow and run the dispatcher in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.workflows.Close()

			var triggerCfg map[string]any
			if err := json.Unmarshal([]byte(triggerJSON), &triggerCfg); err != nil {
				return fmt.Errorf("invalid --trigger JSON: %w", err)
			}

			sched := scheduler.New(scheduler.Config{
				Runner: func(string) scheduler.WorkflowRunner {
					return a.newRunner(workflow.ErrorStrategy(a.cfg.ErrorStrategy), a.cfg.DriverOptions())
				},
				Poll:   a.cfg.SchedulerPoll,
				Logger: a.logger,
			})
			jobID, err := sched.Schedule(args[0], credential, triggerCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled job %s\n", jobID)

			if a.cfg.MetricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", a.collector.Handler())
					if err := http.ListenAndServe(a.cfg.MetricsAddr, mux); err != nil {
						a.logger.Warn("metrics server stopped", "error", err)
					}
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&triggerJSON, "trigger", "", `trigger config JSON, e.g. '{"trigger":"interval","minutes":5}'`)
	cmd.Flags().StringVar(&credential, "credential", "", "credential name recorded with the job")
	_ = cmd.MarkFlagRequired("trigger")
	return cmd
}
