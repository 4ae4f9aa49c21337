package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joshsymonds/mailtriage/internal/ruleexpr"
	"github.com/joshsymonds/mailtriage/internal/rules"
	"github.com/joshsymonds/mailtriage/internal/runtime"
)

type rulesConfig struct {
	db      string
	list    bool
	check   bool
	add     bool
	kind    string
	expr    string
	scope   string
	options string
	order   int
}

func main() {
	cfg := parseRulesFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailtriage-rules failed", "error", err)
		os.Exit(1)
	}
}

func parseRulesFlags() rulesConfig {
	db := flag.String("db", "rules.db", "path to the rule database")
	list := flag.Bool("list", false, "print all stored rules")
	check := flag.Bool("check", false, "parse every stored expression and report failures")
	add := flag.Bool("add", false, "insert a rule row")
	kind := flag.String("kind", "", "rule kind: whitelist, blacklist, or label:+NAME / label:-NAME")
	expr := flag.String("expr", "", "rule expression")
	scope := flag.String("scope", rules.ScopeAll, "rule scope: all or +(account) markers")
	options := flag.String("options", "", "comma separated flags, e.g. skip_others")
	order := flag.Int("order", 0, "evaluation order for label rules")
	flag.Parse()

	return rulesConfig{
		db:      *db,
		list:    *list,
		check:   *check,
		add:     *add,
		kind:    *kind,
		expr:    *expr,
		scope:   *scope,
		options: *options,
		order:   *order,
	}
}

func run(cfg rulesConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !cfg.list && !cfg.check && !cfg.add {
		flag.Usage()
		return fmt.Errorf("nothing to do: pass -list, -check, or -add")
	}

	store, err := rules.OpenSQLite(cfg.db)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if cfg.add {
		if err := addRule(ctx, store, cfg); err != nil {
			return err
		}
	}
	if cfg.list {
		if err := listRules(ctx, store); err != nil {
			return err
		}
	}
	if cfg.check {
		if err := checkRules(ctx, store); err != nil {
			return err
		}
	}
	return nil
}

func addRule(ctx context.Context, store *rules.SQLiteStore, cfg rulesConfig) error {
	if cfg.kind == "" || cfg.expr == "" {
		return fmt.Errorf("-add requires -kind and -expr")
	}
	if err := validateRule(rules.Rule{Kind: cfg.kind, Expression: cfg.expr}); err != nil {
		return fmt.Errorf("refusing to add: %w", err)
	}
	added, err := store.AddRule(ctx, rules.Rule{
		Kind:       cfg.kind,
		Expression: cfg.expr,
		Scope:      cfg.scope,
		Options:    cfg.options,
		Order:      cfg.order,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added rule %d\n", added.ID)
	return nil
}

func listRules(ctx context.Context, store *rules.SQLiteStore) error {
	all, err := store.ListRules(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tORDER\tSCOPE\tOPTIONS\tEXPRESSION")
	for _, r := range all {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.Kind, r.Order, r.Scope, r.Options, r.Expression)
	}
	return w.Flush()
}

// checkRules lints the store: every expression must parse and every label
// rule must carry a valid operator. Findings are reported together and the
// command fails if any exist.
func checkRules(ctx context.Context, store *rules.SQLiteStore) error {
	all, err := store.ListRules(ctx)
	if err != nil {
		return err
	}
	findings := 0
	for _, r := range all {
		for _, problem := range ruleProblems(r) {
			fmt.Printf("rule %d (%s): %s\n", r.ID, r.Kind, problem)
			findings++
		}
	}
	if findings > 0 {
		return fmt.Errorf("%d finding(s) in %d rules", findings, len(all))
	}
	fmt.Printf("checked %d rules, no findings\n", len(all))
	return nil
}

func validateRule(r rules.Rule) error {
	problems := ruleProblems(r)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", problems[0])
}

func ruleProblems(r rules.Rule) []string {
	var out []string
	switch {
	case r.Kind == rules.KindWhitelist || r.Kind == rules.KindBlacklist:
	case strings.HasPrefix(r.Kind, rules.KindLabelPrefix+":"):
		if _, _, err := r.LabelOp(); err != nil {
			out = append(out, err.Error())
		}
	default:
		out = append(out, fmt.Sprintf("unknown kind %q", r.Kind))
	}
	if _, err := ruleexpr.Parse(r.Expression); err != nil {
		out = append(out, fmt.Sprintf("expression does not parse: %v", err))
	}
	return out
}
