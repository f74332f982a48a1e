package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute stored test cases against an environment",
	Long: `Execute one case, a module, every case, or an explicit batch of cases
against a stored environment. The execution is recorded and then rendered.

Examples:
  hitrun run single 12 --env staging
  hitrun run module 3 --env 1 -o junit --output-file report.xml
  hitrun run all --env staging --notify-on always
  hitrun run batch 4 5 9 --env staging -o json`,
}

var runSingleCmd = &cobra.Command{
	Use:   "single <case-id>",
	Short: "Run one test case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runTarget(cmd, runner.Target{Scope: model.ScopeSingle, CaseID: id})
	},
}

var runModuleCmd = &cobra.Command{
	Use:   "module <module-id>",
	Short: "Run every case of a module in id order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runTarget(cmd, runner.Target{Scope: model.ScopeModule, ModuleID: id})
	},
}

var runAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every stored case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTarget(cmd, runner.Target{Scope: model.ScopeAll})
	},
}

var runBatchCmd = &cobra.Command{
	Use:   "batch <case-id>...",
	Short: "Run an explicit list of cases in the given order",
	Args:  cobra.RangeArgs(1, runner.MaxBatchSize),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := parseID(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return runTarget(cmd, runner.Target{Scope: model.ScopeBatch, CaseIDs: ids})
	},
}

var (
	envFlag          string
	executorFlag     string
	nameFlag         string
	verboseFlag      bool
	noColorFlag      bool
	outputFlag       string
	outputFileFlag   string
	timeoutFlag      string
	rateLimitFlag    float64
	proxyFlag        string
	insecureFlag     bool
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string
)

func init() {
	pf := runCmd.PersistentFlags()

	pf.StringVarP(&envFlag, "env", "e", getEnvString("HITRUN_ENV", ""), "Environment id or name (env: HITRUN_ENV)")
	pf.StringVar(&executorFlag, "executor", getEnvString("HITRUN_EXECUTOR", runner.DefaultExecutor), "Executor recorded on the execution (env: HITRUN_EXECUTOR)")
	pf.StringVarP(&nameFlag, "name", "n", "", "Execution name (default: derived from the scope)")

	// Output flags
	pf.BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("HITRUN_VERBOSE", false), "Show request details and execution logs (env: HITRUN_VERBOSE)")
	pf.BoolVar(&noColorFlag, "no-color", getEnvBool("HITRUN_NO_COLOR", false), "Disable colored output (env: HITRUN_NO_COLOR)")
	pf.StringVarP(&outputFlag, "output", "o", getEnvString("HITRUN_OUTPUT", "console"), "Output format: console, json, junit (env: HITRUN_OUTPUT)")
	pf.StringVar(&outputFileFlag, "output-file", getEnvString("HITRUN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITRUN_OUTPUT_FILE)")

	// Network flags
	pf.StringVar(&timeoutFlag, "timeout", "", "Request timeout, e.g. 10s (default: http.timeout from config)")
	pf.Float64Var(&rateLimitFlag, "rate-limit", 0, "Maximum outbound requests per second (default: unlimited)")
	pf.StringVar(&proxyFlag, "proxy", "", "Proxy URL for HTTP requests (env: HITRUN_HTTP_PROXY)")
	pf.BoolVarP(&insecureFlag, "insecure", "k", false, "Disable SSL certificate validation")

	// Notification flags
	pf.StringVar(&notifyOnFlag, "notify-on", "", "When to notify: always, failure, success, recovery (env: HITRUN_NOTIFY_ON)")
	pf.StringVar(&slackWebhookFlag, "slack-webhook", "", "Slack incoming webhook URL (env: HITRUN_SLACK_WEBHOOK)")
	pf.StringVar(&slackChannelFlag, "slack-channel", "", "Slack channel override (env: HITRUN_SLACK_CHANNEL)")
	pf.StringVar(&teamsWebhookFlag, "teams-webhook", "", "Microsoft Teams webhook URL (env: HITRUN_TEAMS_WEBHOOK)")

	runCmd.AddCommand(runSingleCmd)
	runCmd.AddCommand(runModuleCmd)
	runCmd.AddCommand(runAllCmd)
	runCmd.AddCommand(runBatchCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, exitWith(ExitUsageError, fmt.Errorf("invalid id %q", s))
	}
	return id, nil
}

// applyRunFlags lays explicitly set run flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	switch outputFlag {
	case "console", "json", "junit":
	default:
		return exitWith(ExitUsageError, fmt.Errorf("unknown output format %q", outputFlag))
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("invalid --timeout: %w", err))
		}
		cfg.HTTP.Timeout = int(d.Milliseconds())
	}
	if flags.Changed("rate-limit") {
		cfg.HTTP.RateLimit = rateLimitFlag
	}
	if proxyFlag != "" {
		cfg.HTTP.Proxy = proxyFlag
	}
	if insecureFlag {
		cfg.HTTP.ValidateSSL = config.BoolPtr(false)
	}
	if notifyOnFlag != "" {
		cfg.Notify.NotifyOn = notifyOnFlag
	}
	if slackWebhookFlag != "" {
		cfg.Notify.SlackWebhook = slackWebhookFlag
	}
	if slackChannelFlag != "" {
		cfg.Notify.SlackChannel = slackChannelFlag
	}
	if teamsWebhookFlag != "" {
		cfg.Notify.TeamsWebhook = teamsWebhookFlag
	}
	if err := cfg.Validate(); err != nil {
		return exitWith(ExitUsageError, err)
	}
	return nil
}

// resolveEnvironment accepts a numeric id or an environment name.
func resolveEnvironment(ctx context.Context, st store.Store, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, exitWith(ExitUsageError, errors.New("--env is required"))
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	envs, err := st.ListEnvironments(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range envs {
		if e.Name == ref {
			return e.ID, nil
		}
	}
	return 0, exitWith(ExitUsageError, fmt.Errorf("environment %q: %w", ref, store.ErrNotFound))
}

func runTarget(cmd *cobra.Command, target runner.Target) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envID, err := resolveEnvironment(ctx, st, envFlag)
	if err != nil {
		return err
	}
	target.EnvironmentID = envID
	target.Executor = executorFlag
	target.Name = nameFlag

	engine, err := newEngine(cfg, st)
	if err != nil {
		return err
	}

	exec, err := engine.Execute(ctx, target)
	// the finish hook may still be sending notifications
	engine.Wait()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, runner.ErrInvalidArgument) {
			return exitWith(ExitUsageError, err)
		}
		return exitWith(ExitTestFailure, err)
	}

	if err := render(ctx, st, exec.ID); err != nil {
		return exitWith(ExitConfigError, err)
	}
	if code := exitCode(ctx, st, exec); code != ExitSuccess {
		return exitWith(code, nil)
	}
	return nil
}

func render(ctx context.Context, st store.Store, executionID int64) error {
	var w io.Writer = os.Stdout
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if noColorFlag {
		color.NoColor = true
	}
	formatter, err := output.New(outputFlag, w, verboseFlag)
	if err != nil {
		return err
	}

	// the run context may already be cancelled; the report is still wanted
	report, err := output.Load(context.WithoutCancel(ctx), st, executionID)
	if err != nil {
		return err
	}
	return formatter.Format(report)
}

// exitCode maps a finished execution to the process exit status. A run
// whose failures are all transport errors exits with ExitNetworkError.
func exitCode(ctx context.Context, st store.Store, exec *model.Execution) int {
	if exec.Status == model.StatusSuccess && exec.Failed == 0 {
		return ExitSuccess
	}
	details, err := st.ListDetails(context.WithoutCancel(ctx), exec.ID)
	if err != nil || len(details) == 0 {
		return ExitTestFailure
	}
	failed, transport := 0, 0
	for _, d := range details {
		if d.Status != model.DetailFailed {
			continue
		}
		failed++
		if msg, _ := d.Response["error"].(string); msg != "" {
			transport++
		}
	}
	if failed > 0 && failed == transport {
		return ExitNetworkError
	}
	return ExitTestFailure
}
