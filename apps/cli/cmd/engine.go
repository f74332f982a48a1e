package cmd

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/notify"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

// notifyTimeout bounds the store reads done to build a notification.
const notifyTimeout = 10 * time.Second

// newClient builds the outbound HTTP client from the http config section.
func newClient(cfg *config.Config) *http.Client {
	timeout := time.Duration(cfg.HTTP.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = runner.DefaultTimeout
	}
	opts := []http.ClientOption{
		http.WithTimeout(timeout),
		http.WithValidateSSL(cfg.HTTP.GetValidateSSL()),
		http.WithFollowRedirects(cfg.HTTP.GetFollowRedirects()),
		http.WithRateLimit(cfg.HTTP.RateLimit),
	}
	if cfg.HTTP.Proxy != "" {
		opts = append(opts, http.WithProxy(cfg.HTTP.Proxy))
	}
	return http.NewClient(opts...)
}

// newNotifyManager returns nil when no webhook is configured.
func newNotifyManager(cfg *config.Config) (*notify.Manager, error) {
	on, err := notify.ParseNotifyOn(cfg.Notify.NotifyOn)
	if err != nil {
		return nil, err
	}
	mgr := notify.NewManager(on)
	if cfg.Notify.SlackWebhook != "" {
		var opts []notify.SlackOption
		if cfg.Notify.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.Notify.SlackChannel))
		}
		mgr.AddNotifier(notify.NewSlackNotifier(cfg.Notify.SlackWebhook, opts...))
	}
	if cfg.Notify.TeamsWebhook != "" {
		mgr.AddNotifier(notify.NewTeamsNotifier(cfg.Notify.TeamsWebhook))
	}
	if mgr.Len() == 0 {
		return nil, nil
	}
	return mgr, nil
}

// notifyHook adapts a notify.Manager to the engine's finish hook.
func notifyHook(st store.Store, mgr *notify.Manager) func(*model.Execution) {
	return func(exec *model.Execution) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		details, err := st.ListDetails(ctx, exec.ID)
		if err != nil {
			logging.Error("notify", err, "loading details of execution %d", exec.ID)
			return
		}
		names := make(map[int64]string, len(details))
		for _, d := range details {
			if tc, err := st.GetTestCase(ctx, d.TestCaseID); err == nil {
				names[d.TestCaseID] = tc.DisplayName()
			}
		}
		var envName string
		if env, err := st.GetEnvironment(ctx, exec.EnvironmentID); err == nil {
			envName = env.Name
		}

		summary := notify.NewRunSummary(exec, details, names, envName)
		if err := mgr.Notify(summary); err != nil {
			logging.Warn("notify", "failed to send notification for execution %d: %v", exec.ID, err)
		}
	}
}

// newEngine wires the store, the HTTP client and notifications into an
// engine.
func newEngine(cfg *config.Config, st store.Store) (*runner.Engine, error) {
	client := newClient(cfg)
	opts := []runner.Option{
		runner.WithTransport(client),
		runner.WithTimeout(client.Timeout()),
	}

	mgr, err := newNotifyManager(cfg)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	if mgr != nil {
		opts = append(opts, runner.WithOnFinish(notifyHook(st, mgr)))
		logging.Debug("cli", "notifications enabled (%d notifier(s), on %s)", mgr.Len(), cfg.Notify.NotifyOn)
	}
	return runner.New(st, opts...), nil
}
