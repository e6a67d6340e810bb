package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/gridci/internal/app"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// classify maps an application error to an ExitError. Definition problems are
// usage errors: the run never started.
func classify(err error) error {
	var defErr *config.DefinitionError
	if errors.As(err, &defErr) {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailure, Message: err.Error()}
}

type options struct {
	cfg    app.Config
	format string
}

// NewRootCommand builds the gridci command tree. Output and logs go to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "gridci",
		Short:         "Job-graph CI orchestrator",
		Long:          "gridci compiles a workflow definition into a DAG of job runs, executes it with bounded concurrency and publishes multi-platform images.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)

	pf := root.PersistentFlags()
	pf.StringVarP(&o.cfg.DefinitionPath, "file", "f", "", "Workflow definition: an .hcl or .yaml file, or a directory of .hcl files")
	pf.StringVar(&o.cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&o.cfg.LogLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&o.cfg.Event, "event", "push", "Trigger event: push, pull_request or workflow_dispatch")
	pf.StringVar(&o.cfg.Ref, "ref", "refs/heads/main", "Git ref of the run")
	pf.StringVar(&o.cfg.SHA, "sha", "", "Commit SHA of the run")
	pf.StringVar(&o.cfg.Repository, "repository", "", "Repository of the run, e.g. acme/widget")
	pf.IntVar(&o.cfg.Attempt, "attempt", 1, "Run attempt; identical attempts reproduce the same run ID")

	registerRunCommand(root, o)
	registerValidateCommand(root, o)
	registerPlanCommand(root, o)
	registerServeCommand(root, o)
	return root
}

// registerExecutionFlags adds the flags of commands that execute runs.
func registerExecutionFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.IntVar(&o.cfg.Capacity, "capacity", 0, "Maximum concurrently running job runs. 0 is unlimited.")
	f.IntVar(&o.cfg.StatusPort, "status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	f.StringVar(&o.cfg.WorkDir, "workdir", ".", "Working directory for step commands")
	f.StringVar(&o.cfg.RegistryBackend, "registry", app.BackendMemory, "Image registry backend: memory or docker")
	f.StringVar(&o.cfg.DatabaseURL, "database-url", os.Getenv("GRIDCI_DATABASE_URL"), "Postgres URL for the run store and tag ledger")
	f.StringVar(&o.cfg.Archive.Endpoint, "archive-endpoint", "", "S3-compatible endpoint for run archives")
	f.StringVar(&o.cfg.Archive.Bucket, "archive-bucket", "gridci", "Archive bucket")
	f.StringVar(&o.cfg.Archive.Region, "archive-region", "", "Archive bucket region")
	f.StringVar(&o.cfg.Archive.Prefix, "archive-prefix", "runs", "Archive object key prefix")
	f.BoolVar(&o.cfg.Archive.UseSSL, "archive-ssl", true, "Use TLS for the archive endpoint")
	f.StringVar(&o.cfg.NotifyURL, "notify-url", "", "socket.io URL receiving live status events")
	f.StringVar(&o.cfg.NotifyNamespace, "notify-namespace", "/", "socket.io namespace")
	f.StringVar(&o.cfg.SecretsPrefix, "secrets-env-prefix", "GRIDCI_SECRET_", "Environment variable prefix of secrets")
	f.StringVar(&o.cfg.SecretsDir, "secrets-dir", "", "Directory holding one file per secret")
}

// config finalizes the configuration. A positional argument is the
// definition path when --file is not given.
func (o *options) config(args []string) (*app.Config, error) {
	cfg := o.cfg
	if cfg.DefinitionPath == "" && len(args) > 0 {
		cfg.DefinitionPath = args[0]
	}
	cfg.Archive.AccessKey = os.Getenv("GRIDCI_ARCHIVE_ACCESS_KEY")
	cfg.Archive.SecretKey = os.Getenv("GRIDCI_ARCHIVE_SECRET_KEY")
	c, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return c, nil
}

// newApp builds the application for a command.
func (o *options) newApp(cmd *cobra.Command, args []string) (*app.App, *app.Config, error) {
	cfg, err := o.config(args)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewApp(cmd.Context(), cmd.OutOrStdout(), cfg)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	return a, cfg, nil
}

func registerRunCommand(root *cobra.Command, o *options) {
	cmd := &cobra.Command{
		Use:   "run [PATH]",
		Short: "Execute one workflow run",
		Long:  "Compile the definition for the given trigger and execute it. The exit code is 0 when the merge gate succeeds and 1 otherwise.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := cfg.Trigger()
			if err != nil {
				return usageError(err)
			}
			if err := a.StartServer(cmd.Context()); err != nil {
				return classify(err)
			}
			defer a.StopServer()

			res, err := a.Run(cmd.Context(), run)
			if err != nil {
				return classify(err)
			}
			if !res.Succeeded() {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("run %s %s", run.ID, res.Outcome)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s %s\n", run.ID, res.Outcome)
			return nil
		},
	}
	registerExecutionFlags(cmd, o)
	root.AddCommand(cmd)
}

func registerValidateCommand(root *cobra.Command, o *options) {
	cmd := &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Validate a workflow definition",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := o.planningApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := cfg.Trigger()
			if err != nil {
				return usageError(err)
			}
			plan, err := a.Plan(cmd.Context(), run)
			if err != nil {
				return classify(err)
			}
			// The merge gate is not counted.
			fmt.Fprintf(cmd.OutOrStdout(), "✓ workflow %q is valid: %d jobs, %d job runs\n", plan.Workflow, len(plan.Order)-1, len(plan.Runs())-1)
			return nil
		},
	}
	root.AddCommand(cmd)
}

func registerPlanCommand(root *cobra.Command, o *options) {
	cmd := &cobra.Command{
		Use:   "plan [PATH]",
		Short: "Print the compiled job-run graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := o.planningApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := cfg.Trigger()
			if err != nil {
				return usageError(err)
			}
			plan, err := a.Plan(cmd.Context(), run)
			if err != nil {
				return classify(err)
			}
			return writePlan(cmd.OutOrStdout(), o.format, app.NewPlanView(plan))
		},
	}
	cmd.Flags().StringVarP(&o.format, "output", "o", "text", "Output format: text, json or yaml")
	root.AddCommand(cmd)
}

// planningApp builds an application that only loads and compiles. The commit
// SHA is optional for it.
func (o *options) planningApp(cmd *cobra.Command, args []string) (*app.App, *app.Config, error) {
	if o.cfg.SHA == "" {
		o.cfg.SHA = "0000000000000000000000000000000000000000"
	}
	return o.newApp(cmd, args)
}

func writePlan(w io.Writer, format string, v app.PlanView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "workflow %s (run %s)\n", v.Workflow, v.RunID)
		for _, j := range v.Jobs {
			fmt.Fprintf(w, "  %s", j.ID)
			if len(j.Needs) > 0 {
				fmt.Fprint(w, " <-")
				for _, n := range j.Needs {
					fmt.Fprintf(w, " %s", n.Job)
				}
			}
			fmt.Fprintln(w)
		}
		return nil
	}
	return usageError(fmt.Errorf("unknown output format %q", format))
}

func registerServeCommand(root *cobra.Command, o *options) {
	cmd := &cobra.Command{
		Use:   "serve [PATH]",
		Short: "Serve run status and accept webhook triggers",
		Long:  "Start the status server. POST /hooks/{event} starts a run; GET /runs and GET /runs/{id} report status.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.cfg.StatusPort == 0 {
				o.cfg.StatusPort = 8080
			}
			a, _, err := o.newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Serve(cmd.Context()); err != nil {
				return classify(err)
			}
			return nil
		},
	}
	registerExecutionFlags(cmd, o)
	root.AddCommand(cmd)
}

// Execute runs the command line. Interrupts cancel the run in flight.
func Execute(ctx context.Context, args []string, outW io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(outW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything else comes from cobra itself: unknown commands and flags.
	return usageError(err)
}
