package rules

import (
	"context"
	"fmt"
	"strings"
)

// Rule kinds understood by the triage engine. Label rules embed their
// operation in the kind itself, e.g. "label:+PROMO" or "label:-NEWS".
const (
	KindWhitelist   = "whitelist"
	KindBlacklist   = "blacklist"
	KindLabelPrefix = "label"
)

// ScopeAll applies a rule to every account.
const ScopeAll = "all"

// OptionSkipOthers stops label rule processing for the item once the
// carrying rule matched.
const OptionSkipOthers = "skip_others"

// Rule is one stored triage directive. Rows are immutable once loaded for a
// run; mutation happens only through the store.
type Rule struct {
	ID         int64
	Kind       string
	Expression string
	Scope      string // "all" or a list of "+(account)" markers
	Options    string // comma separated flags
	Order      int    // evaluation sequence, meaningful for label rules only
}

// AppliesTo reports whether the rule is in scope for the given account.
func (r Rule) AppliesTo(account string) bool {
	if r.Scope == ScopeAll {
		return true
	}
	return strings.Contains(r.Scope, "+("+account+")")
}

// HasOption reports whether the named flag is present in the rule's options.
func (r Rule) HasOption(name string) bool {
	for _, opt := range strings.Split(r.Options, ",") {
		if strings.TrimSpace(opt) == name {
			return true
		}
	}
	return false
}

// LabelOp splits a label rule's kind into its operator and label name. The
// name is upper-cased and trimmed. A kind without a +/- operator indicates a
// corrupt rule row.
func (r Rule) LabelOp() (op byte, name string, err error) {
	_, target, ok := strings.Cut(r.Kind, ":")
	if !ok {
		return 0, "", fmt.Errorf("rule %d: kind %q has no label target", r.ID, r.Kind)
	}
	target = strings.ToUpper(strings.TrimSpace(target))
	if len(target) < 2 {
		return 0, "", fmt.Errorf("rule %d: label target %q too short", r.ID, target)
	}
	op = target[0]
	if op != '+' && op != '-' {
		return 0, "", fmt.Errorf("rule %d: invalid label operator %q", r.ID, string(op))
	}
	return op, target[1:], nil
}

// Store hands rule rows to a triage run, already filtered by scope. Label
// rules come back ordered by their Order field; whitelist and blacklist
// ordering is store-defined since first-match-wins is the only property the
// engine relies on.
type Store interface {
	FetchRules(ctx context.Context, kindPrefix, account string) ([]Rule, error)
}
