package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/config"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/rules"
	"github.com/joshsymonds/mailtriage/internal/runtime"
	"github.com/joshsymonds/mailtriage/internal/triage"
)

type cleanConfig struct {
	configPath string
	authDir    string
	days       int
	key        string
	ai         bool
	dryRun     bool
}

func main() {
	cfg := parseCleanFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailtriage-clean failed", "error", err)
		os.Exit(1)
	}
}

func parseCleanFlags() cleanConfig {
	configPath := flag.String("config", "mailtriage.toml", "path to the run configuration")
	authDir := flag.String("auth", os.ExpandEnv("$HOME/.gmailctl"), "credential directory; per-account subdirectories")
	days := flag.Int("days", 2, "lookback window in days")
	key := flag.String("key", "#", "classifier API key; # prompts interactively")
	ai := flag.Bool("ai", false, "enable AI labelling (requires [ai] config)")
	dryRun := flag.Bool("dry-run", false, "log decisions; skip modifications")
	flag.Parse()

	return cleanConfig{
		configPath: *configPath,
		authDir:    *authDir,
		days:       *days,
		key:        *key,
		ai:         *ai,
		dryRun:     *dryRun,
	}
}

func run(cfg cleanConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := runtime.DefaultLogger()
	log.Info("running cleanup", "lookback_days", cfg.days)

	conf, err := config.Load(cfg.configPath)
	if err != nil {
		return err
	}
	pause, err := conf.PauseDuration()
	if err != nil {
		return err
	}
	authDir := cfg.authDir
	if conf.AuthDir != "" {
		authDir = conf.AuthDir
	}

	store, err := rules.OpenSQLite(conf.RulesDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	useAI := cfg.ai && conf.AI.Enabled
	var classifier triage.Classifier
	if useAI {
		key, keyErr := resolveKey(cfg.key)
		if keyErr != nil {
			return keyErr
		}
		classifier = classify.NewOpenAI(key, conf.AI.Model, log)
	}

	// Accounts are fully independent: own credentials, own label mappings.
	// Items within one account stay strictly sequential.
	g, gctx := errgroup.WithContext(ctx)
	for account, baseQuery := range conf.Accounts {
		g.Go(func() error {
			client, err := runtime.NewGmailClient(gctx, filepath.Join(authDir, account))
			if err != nil {
				return fmt.Errorf("create client for %s: %w", account, err)
			}
			pacer, cleanup := newPacer(conf, pause)
			defer cleanup()
			svc := triage.NewService(client, store, classifier, pacer, log.With("account", account))
			spec := triage.Spec{
				Account:      account,
				BaseQuery:    baseQuery,
				LookbackDays: cfg.days,
				EnableAI:     useAI,
				AILabels:     conf.AI.Labels,
				PageSize:     conf.PageSize,
				DryRun:       cfg.dryRun,
			}
			if err := svc.Run(gctx, spec); err != nil {
				return fmt.Errorf("cleanup %s: %w", account, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// newPacer picks the pacing strategy: a token bucket when rate_per_second is
// configured, otherwise the fixed inter-item pause.
func newPacer(conf config.Config, pause time.Duration) (triage.Pacer, func()) {
	if conf.RatePerSecond > 0 {
		tb := rate.NewTokenBucket(conf.RatePerSecond)
		return tb, tb.Stop
	}
	return rate.NewDelay(pause), func() {}
}

// resolveKey returns the classifier API key from the flag, the environment,
// or an interactive no-echo prompt.
func resolveKey(flagValue string) (string, error) {
	if flagValue != "" && flagValue != "#" {
		return flagValue, nil
	}
	if env := os.Getenv("OPENAI_API_KEY"); env != "" {
		return env, nil
	}
	fmt.Fprint(os.Stderr, "Please provide secret key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("empty secret key")
	}
	return key, nil
}
