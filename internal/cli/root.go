package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/gzhole/migclean/internal/audit"
	"github.com/gzhole/migclean/internal/config"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/pipeline"
	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/session"
	"github.com/gzhole/migclean/internal/store"
)

var (
	configPath  string
	dbPath      string
	rulesPath   string
	logPath     string
	logLevel    string
	sessionFlag string
	showMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "migclean",
	Short: "migclean - Safe driver and software cleanup after a hardware migration",
	Long: `migclean inventories drivers, services, driver packages and programs left
behind by a previous machine, scores each one with a deterministic rule set,
and removes only what you approve. Protected components are hard-blocked and
can never be removed, and every action is recorded in an append-only audit log.

Typical flow:
  migclean session new
  migclean scan --file inventory.json
  migclean facts add old_platform_vendor intel
  migclean plan generate
  migclean queue build --dry-run
  migclean execute`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if showMetrics {
			dumpMetrics(os.Stderr)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.migclean/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the session database (default: ~/.migclean/migclean.db)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to a rule set YAML file (default: ~/.migclean/rules.yaml, built-in rules when absent)")
	rootCmd.PersistentFlags().StringVar(&logPath, "audit-log", "", "Path to the audit log mirror (default: ~/.migclean/audit.jsonl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "Session id (default: the most recent session)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print counters collected during this command to stderr")
}

func Execute() error {
	return rootCmd.Execute()
}

// app holds everything a command needs. Close releases it.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *store.Store
	audit *audit.Logger
	rules *rules.RuleSet
	svc   *pipeline.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Overrides{
		ConfigPath: configPath,
		DBPath:     dbPath,
		RulesPath:  rulesPath,
		LogPath:    logPath,
		LogLevel:   logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.Kitchen)
	}
	return zc.Build()
}

func loadRules(cfg *config.Config) (*rules.RuleSet, error) {
	base, err := rules.LoadOrDefault(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	rs, _, err := rules.LoadPacks(cfg.PacksDir, base)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule packs: %w", err)
	}
	return rs, nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	rs, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	auditLog, err := audit.New(st, log, audit.WithMirror(cfg.LogPath))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	runner := execution.NewExecRunner(log)
	handlers := execution.NewRegistry(
		&execution.RestorePointHandler{Runner: runner},
		&execution.DriverHandler{Runner: runner},
		&execution.ServiceHandler{Runner: runner},
		&execution.ProgramHandler{
			Runner:  runner,
			Timeout: time.Duration(cfg.Execution.UninstallTimeoutSeconds) * time.Second,
		},
	)

	svc, err := pipeline.New(st, pipeline.Options{
		Rules:      rs,
		Handlers:   handlers,
		Audit:      auditLog,
		Progress:   progressPrinter{},
		Log:        log,
		AppVersion: Version,
	})
	if err != nil {
		auditLog.Close()
		st.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st, audit: auditLog, rules: rs, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.log.Warn("closing audit log", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing database", zap.Error(err))
	}
	_ = a.log.Sync()
}

// session resolves --session or falls back to the most recent session.
func (a *app) session(ctx context.Context) (*session.Session, error) {
	if sessionFlag != "" {
		return a.svc.GetSession(ctx, sessionFlag)
	}
	sess, err := a.svc.CurrentSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("no session found; run 'migclean session new' first: %w", err)
	}
	return sess, nil
}

func printJSON(v any) error {
	enc := jsonEncoder(os.Stdout)
	return enc.Encode(v)
}
