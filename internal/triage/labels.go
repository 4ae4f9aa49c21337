package triage

import (
	"errors"
	"log/slog"

	"github.com/joshsymonds/mailtriage/internal/rules"
)

// LabelRuler applies the account's ordered label rules to one item.
type LabelRuler struct {
	Rules []rules.Rule // label:* rules, already ordered by the store
	Log   *slog.Logger
}

// Apply evaluates each rule in order against the frozen context, mutating
// the working label set and appending matched operations to adds/removes.
// Additions and removals are validated against the working set first, so a
// rule that re-adds an existing label is a no-op. A rule carrying the
// skip_others option stops processing once it matches.
//
// The context's labels binding is fixed at build time and is not refreshed
// as the working set mutates mid-loop; only the working set bookkeeping sees
// earlier rules' changes. This mirrors long-standing observed behavior and
// must not be changed without flagging it.
//
// Rows with an invalid operator are corrupt configuration: they are skipped
// and reported through the returned error rather than silently ignored.
func (l LabelRuler) Apply(ec Context, working map[string]struct{}, adds, removes *[]string) error {
	var bad []error
	for _, r := range l.Rules {
		op, name, err := r.LabelOp()
		if err != nil {
			bad = append(bad, err)
			continue
		}
		if !evalClause(r.Expression, ec, l.Log) {
			continue
		}
		switch op {
		case '+':
			if _, ok := working[name]; !ok {
				l.Log.Info("adding label", "sender", ec.Sender, "label", name, "rule", r.Expression)
				working[name] = struct{}{}
				*adds = append(*adds, name)
			}
		case '-':
			if _, ok := working[name]; ok {
				l.Log.Info("removing label", "sender", ec.Sender, "label", name, "rule", r.Expression)
				delete(working, name)
				*removes = append(*removes, name)
			}
		}
		if r.HasOption(rules.OptionSkipOthers) {
			l.Log.Info("skipping remaining label rules", "sender", ec.Sender, "rule", r.Expression)
			break
		}
	}
	return errors.Join(bad...)
}
