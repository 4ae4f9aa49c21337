package triage

import (
	"log/slog"

	"github.com/joshsymonds/mailtriage/internal/rules"
)

// starredSafetyRule is injected into every whitelist evaluation regardless
// of store contents. Hard-coded on purpose: an empty or corrupt rule store
// must never cause starred mail to be trashed.
const starredSafetyRule = "'starred' in labels"

// DeleteDecider applies whitelist-then-blacklist rules to an item. The
// whitelist wins: its first match keeps the item no matter what the
// blacklist would say. With no match on either list the item is kept.
type DeleteDecider struct {
	Whitelist []rules.Rule
	Blacklist []rules.Rule
	Log       *slog.Logger
}

// ShouldDelete reports whether the item described by ec should be trashed.
// It is evaluated twice per item, against the pre- and post-labelling label
// state, since a label change can legitimately flip the outcome.
func (d DeleteDecider) ShouldDelete(ec Context) bool {
	if evalClause(starredSafetyRule, ec, d.Log) {
		d.Log.Info("keeping item", "sender", ec.Sender, "rule", starredSafetyRule)
		return false
	}
	for _, r := range d.Whitelist {
		if evalClause(r.Expression, ec, d.Log) {
			d.Log.Info("keeping item", "sender", ec.Sender, "rule", r.Expression)
			return false
		}
	}
	for _, r := range d.Blacklist {
		if evalClause(r.Expression, ec, d.Log) {
			d.Log.Info("deleting item", "sender", ec.Sender, "rule", r.Expression)
			return true
		}
	}
	return false
}
