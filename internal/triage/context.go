package triage

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/ruleexpr"
)

// Time-unit constants exposed to rule expressions for comparisons against
// timediff, e.g. "timediff > 2 * day".
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
	secondsPerMonth  = 30 * secondsPerDay
	secondsPerYear   = 365 * secondsPerDay
)

// Context holds the per-item bindings visible to rule expressions, plus the
// sender identity used in evaluation error logs and the resolved label name
// set that seeds the working set. It is rebuilt fresh for every evaluation
// pass; nothing in it survives across items.
type Context struct {
	Sender string
	Env    ruleexpr.Env
	Labels map[string]struct{} // resolved label names, original casing
}

// BuildContext normalizes a fetched message into an evaluation context.
// Missing text fields become empty strings; a sender without an @ yields a
// best-effort alias with an empty domain.
func BuildContext(msg gmail.Message, labels *LabelMap, now time.Time) Context {
	sender := normalize(msg.Sender)
	alias, domain, _ := strings.Cut(sender, "@")

	subject := normalize(msg.Subject)
	snippet := normalize(msg.Snippet)
	text := normalize(msg.Text)

	names := labels.Names(msg.LabelIDs)
	lowered := make([]string, 0, len(names))
	for name := range names {
		lowered = append(lowered, strings.ToLower(name))
	}

	var tags []string
	if msg.Unsubscribe != "" {
		tags = append(tags, "unsubscribe")
	}

	env := ruleexpr.Env{
		"sender":          ruleexpr.StringVal(sender),
		"sender_alias":    ruleexpr.StringVal(alias),
		"sender_domain":   ruleexpr.StringVal(domain),
		"subject":         ruleexpr.StringVal(subject),
		"snippet":         ruleexpr.StringVal(snippet),
		"text":            ruleexpr.StringVal(text),
		"subject_snippet": ruleexpr.StringVal(subject + " " + snippet),
		"content":         ruleexpr.StringVal(subject + " " + snippet + " " + text),
		"labels":          ruleexpr.SetVal(lowered...),
		"tags":            ruleexpr.SetVal(tags...),
		"timediff":        ruleexpr.NumberVal(now.Sub(msg.Date).Seconds()),
		"minute":          ruleexpr.NumberVal(secondsPerMinute),
		"hour":            ruleexpr.NumberVal(secondsPerHour),
		"day":             ruleexpr.NumberVal(secondsPerDay),
		"week":            ruleexpr.NumberVal(secondsPerWeek),
		"month":           ruleexpr.NumberVal(secondsPerMonth),
		"year":            ruleexpr.NumberVal(secondsPerYear),
	}
	return Context{Sender: sender, Env: env, Labels: names}
}

// normalize lower-cases a field and collapses runs of whitespace, treating
// missing values as empty strings.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// evalClause applies the fail-closed policy: any evaluation error is logged
// with the offending sender identity and treated as false. A broken rule can
// suppress an action it was meant to trigger, but it can never cause one.
func evalClause(expression string, ec Context, log *slog.Logger) bool {
	ok, err := ruleexpr.Evaluate(expression, ec.Env)
	if err != nil {
		log.Error("rule evaluation failed", "sender", ec.Sender, "rule", expression, "error", err)
		return false
	}
	return ok
}
