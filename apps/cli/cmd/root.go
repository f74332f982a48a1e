package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag        string
	dirFlag           string
	logLevelFlag      string
	logFormatFlag     string
	storageDriverFlag string
	dsnFlag           string
)

var rootCmd = &cobra.Command{
	Use:   "hitrun",
	Short: "Run stored API test cases on demand or on a schedule.",
	Long: `hitrun executes HTTP test cases kept in a record store against a
named environment, evaluates their assertions, and records every run.

Cases are described in YAML catalogs and loaded with "hitrun load". They can
then be run once with "hitrun run" or on a timer with "hitrun schedule".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsageError)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", getEnvString("HITRUN_CONFIG", ""), "Path to config file (env: HITRUN_CONFIG)")
	pf.StringVar(&dirFlag, "dir", ".", "Directory searched for config and .env files")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (env: HITRUN_LOG_LEVEL)")
	pf.StringVar(&logFormatFlag, "log-format", "", "Log format: text or json (env: HITRUN_LOG_FORMAT)")
	pf.StringVar(&storageDriverFlag, "storage-driver", "", "Record store: sqlite3, postgres or memory (env: HITRUN_STORAGE_DRIVER)")
	pf.StringVar(&dsnFlag, "dsn", "", "Record store data source name (env: HITRUN_STORAGE_DSN)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(executionsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitError carries a process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// loadConfig resolves file, .env and HITRUN_* settings, then the persistent
// flags, and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dirFlag, configFlag)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}

	cfg = cfg.Merge(&config.Config{
		Storage:   config.StorageConfig{Driver: storageDriverFlag, DSN: dsnFlag},
		LogLevel:  logLevelFlag,
		LogFormat: logFormatFlag,
	})

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	logging.Init(level, logging.Format(cfg.LogFormat), os.Stderr)

	if err := cfg.Validate(); err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Storage.Driver == "memory" {
		logging.Warn("cli", "using the in-memory store; records are lost on exit")
		return store.NewMemory(), nil
	}
	st, err := store.NewSQL(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	logging.Debug("cli", "opened %s store", cfg.Storage.Driver)
	return st, nil
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
