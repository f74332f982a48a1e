package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/scheduler"
)

const (
	// WatchDebounceDelay is the debounce delay for task file events
	WatchDebounceDelay = 300 * time.Millisecond
	// ShutdownTimeout bounds how long in-flight runs get to unwind
	ShutdownTimeout = 30 * time.Second
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled tasks from a task file until interrupted",
	Long: `Start the scheduler daemon. Tasks are read from a YAML task file and
re-synchronised whenever the file changes: new tasks are scheduled, removed
tasks are cancelled and edited tasks are replaced.

With the redis registry, task descriptors survive restarts and are restored
before the task file is applied.

Task file:
  tasks:
    - task_id: smoke
      kind: cron            # once | recurring | cron
      task_type: module     # single | module | all
      target_id: 3
      environment_id: 1
      expression: "*/5 * * * *"
    - kind: recurring
      task_type: all
      environment_id: 1
      interval_minutes: 60

Examples:
  hitrun schedule --tasks tasks.yaml
  hitrun schedule --tasks tasks.yaml --registry redis --redis-addr localhost:6379
  hitrun schedule list --registry redis`,
	Args: cobra.NoArgs,
	RunE: scheduleCommand,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List task descriptors persisted in the registry",
	Args:  cobra.NoArgs,
	RunE:  scheduleListCommand,
}

var (
	tasksFlag     string
	registryFlag  string
	redisAddrFlag string
	redisKeyFlag  string
)

func init() {
	pf := scheduleCmd.PersistentFlags()
	pf.StringVar(&registryFlag, "registry", "", "Task registry: memory or redis (env: HITRUN_SCHEDULER_REGISTRY)")
	pf.StringVar(&redisAddrFlag, "redis-addr", "", "Redis address for the redis registry (env: HITRUN_REDIS_ADDR)")
	pf.StringVar(&redisKeyFlag, "redis-key", "", "Redis hash holding task descriptors (env: HITRUN_REDIS_KEY)")
	scheduleCmd.Flags().StringVar(&tasksFlag, "tasks", "", "Task file to load and watch (env: HITRUN_TASK_FILE)")

	scheduleCmd.AddCommand(scheduleListCmd)
}

type taskFile struct {
	Tasks []scheduler.Descriptor `yaml:"tasks"`
}

// readTaskFile decodes and checks a task file. Tasks without an id get a
// name-based UUID derived from their content, so the id is stable across
// reloads as long as the entry is unchanged.
func readTaskFile(path string) ([]scheduler.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	seen := make(map[string]bool, len(tf.Tasks))
	for i := range tf.Tasks {
		d := &tf.Tasks[i]
		if d.TaskID == "" {
			d.TaskID = defaultTaskID(*d)
		}
		if err := d.Check(); err != nil {
			return nil, fmt.Errorf("%s: task %d: %w", path, i+1, err)
		}
		if seen[d.TaskID] {
			return nil, fmt.Errorf("%s: task %s: %w", path, d.TaskID, scheduler.ErrDuplicateTask)
		}
		seen[d.TaskID] = true
	}
	return tf.Tasks, nil
}

func defaultTaskID(d scheduler.Descriptor) string {
	var fireAt string
	if d.FireAt != nil {
		fireAt = d.FireAt.UTC().Format(time.RFC3339Nano)
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%s|%d|%s|%s",
		d.Kind, d.TaskType, d.TargetID, d.EnvironmentID, fireAt, d.IntervalMinutes, d.Expression, d.Executor)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func sameDescriptor(a, b scheduler.Descriptor) bool {
	if (a.FireAt == nil) != (b.FireAt == nil) {
		return false
	}
	if a.FireAt != nil && !a.FireAt.Equal(*b.FireAt) {
		return false
	}
	a.FireAt, b.FireAt = nil, nil
	return a == b
}

// taskSync applies task file contents to a running scheduler.
type taskSync struct {
	sched   *scheduler.Scheduler
	applied map[string]scheduler.Descriptor
}

func newTaskSync(sched *scheduler.Scheduler) *taskSync {
	return &taskSync{sched: sched, applied: make(map[string]scheduler.Descriptor)}
}

// adopt marks tasks already registered (restored ones) as applied.
func (ts *taskSync) adopt(ctx context.Context) error {
	tasks, err := ts.sched.Registry().List(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		ts.applied[t.TaskID] = t.Descriptor
	}
	return nil
}

// apply cancels tasks that left the file or changed, then schedules new and
// changed ones. One-shot tasks that already ran are not scheduled again.
func (ts *taskSync) apply(ctx context.Context, desired []scheduler.Descriptor) {
	want := make(map[string]scheduler.Descriptor, len(desired))
	for _, d := range desired {
		want[d.TaskID] = d
	}

	for id, prev := range ts.applied {
		if d, ok := want[id]; ok && sameDescriptor(prev, d) {
			continue
		}
		if _, err := ts.sched.Cancel(ctx, id); err != nil && !errors.Is(err, scheduler.ErrTaskNotFound) {
			logging.Error("schedule", err, "cancelling task %s", id)
			continue
		}
		delete(ts.applied, id)
		logging.Info("schedule", "cancelled task %s", id)
	}

	for _, d := range desired {
		if _, ok := ts.applied[d.TaskID]; ok {
			continue
		}
		ack, err := ts.sched.Schedule(ctx, d)
		if err != nil {
			logging.Error("schedule", err, "scheduling task %s", d.TaskID)
			continue
		}
		ts.applied[d.TaskID] = d
		if ack.NextRun != nil {
			logging.Info("schedule", "scheduled %s task %s, next run %s", d.Kind, d.TaskID, ack.NextRun.Format(time.RFC3339))
		} else {
			logging.Info("schedule", "scheduled %s task %s", d.Kind, d.TaskID)
		}
	}
}

func applyScheduleFlags(cfg *config.Config) error {
	if registryFlag != "" {
		cfg.Scheduler.Registry = registryFlag
	}
	if redisAddrFlag != "" {
		cfg.Scheduler.RedisAddr = redisAddrFlag
	}
	if redisKeyFlag != "" {
		cfg.Scheduler.RedisKey = redisKeyFlag
	}
	if tasksFlag != "" {
		cfg.Scheduler.TaskFile = tasksFlag
	}
	if err := cfg.Validate(); err != nil {
		return exitWith(ExitUsageError, err)
	}
	return nil
}

func newRegistry(ctx context.Context, cfg *config.Config) (scheduler.Registry, func(), error) {
	if cfg.Scheduler.Registry != "redis" {
		return scheduler.NewMemoryRegistry(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Scheduler.RedisAddr})
	reg, err := scheduler.NewRedisRegistry(ctx, client, cfg.Scheduler.RedisKey)
	if err != nil {
		_ = client.Close()
		return nil, nil, exitWith(ExitNetworkError, err)
	}
	return reg, func() { _ = client.Close() }, nil
}

func scheduleCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyScheduleFlags(cfg); err != nil {
		return err
	}
	taskPath := cfg.Scheduler.TaskFile
	if taskPath == "" {
		return exitWith(ExitUsageError, errors.New("a task file is required (--tasks or scheduler.task_file)"))
	}
	taskPath, err = filepath.Abs(taskPath)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	desired, err := readTaskFile(taskPath)
	if err != nil {
		return exitWith(ExitParseError, err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := newEngine(cfg, st)
	if err != nil {
		return err
	}
	defer engine.Wait()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	sched := scheduler.New(engine,
		scheduler.WithRegistry(registry),
		scheduler.WithOnRun(func(taskID string, exec *model.Execution, err error) {
			if err != nil {
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  task %s: execution #%d %s (%d passed, %d failed)\n",
				time.Now().Format(time.RFC3339), taskID, exec.ID, exec.Status, exec.Passed, exec.Failed)
		}),
	)

	restored, err := sched.Restore(ctx)
	if err != nil {
		return exitWith(ExitNetworkError, fmt.Errorf("restoring tasks: %w", err))
	}
	if restored > 0 {
		logging.Info("schedule", "restored %d task(s) from the registry", restored)
	}

	ts := newTaskSync(sched)
	if err := ts.adopt(ctx); err != nil {
		return err
	}
	ts.apply(ctx, desired)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	// editors replace files on save, so the directory is watched
	if err := watcher.Add(filepath.Dir(taskPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", taskPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduler running with %d task(s) from %s (press Ctrl+C to stop)\n", len(ts.applied), taskPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchTaskFile(gctx, watcher, taskPath, func() {
			tasks, err := readTaskFile(taskPath)
			if err != nil {
				logging.Error("schedule", err, "task file not applied")
				return
			}
			ts.apply(gctx, tasks)
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("schedule", "shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return sched.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchTaskFile calls reload after writes to path settle, until ctx ends.
func watchTaskFile(ctx context.Context, watcher *fsnotify.Watcher, path string, reload func()) error {
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(WatchDebounceDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("schedule", err, "watching task file")
		case <-debounce:
			debounce = nil
			logging.Info("schedule", "task file changed, re-applying")
			reload()
		}
	}
}

func scheduleListCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyScheduleFlags(cfg); err != nil {
		return err
	}
	if cfg.Scheduler.Registry != "redis" {
		return exitWith(ExitUsageError, errors.New("only the redis registry persists tasks between processes"))
	}

	registry, closeRegistry, err := newRegistry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	descriptors, err := registry.Load(cmd.Context())
	if err != nil {
		return exitWith(ExitNetworkError, err)
	}
	if len(descriptors) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks registered.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tKIND\tTYPE\tTARGET\tENV\tWHEN")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", d.TaskID, d.Kind, d.TaskType, d.TargetID, d.EnvironmentID, describeWhen(d))
	}
	return w.Flush()
}

func describeWhen(d scheduler.Descriptor) string {
	switch d.Kind {
	case scheduler.KindOnce:
		if d.FireAt != nil {
			return d.FireAt.Format(time.RFC3339)
		}
	case scheduler.KindRecurring:
		return fmt.Sprintf("every %dm", d.IntervalMinutes)
	case scheduler.KindCron:
		return d.Expression
	}
	return "-"
}
