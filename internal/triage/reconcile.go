package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// LabelMap is the bidirectional label name/id mapping for one account run.
// It is loaded once, extended in place whenever the reconciler creates a
// label, and must only be touched from the account's single processing
// goroutine; create-if-absent is check-then-insert against this map.
type LabelMap struct {
	byName map[string]gmail.LabelID
	byID   map[gmail.LabelID]string
}

// NewLabelMap wraps the name/id mappings returned by the transport client.
func NewLabelMap(byName map[string]gmail.LabelID, byID map[gmail.LabelID]string) *LabelMap {
	if byName == nil {
		byName = map[string]gmail.LabelID{}
	}
	if byID == nil {
		byID = map[gmail.LabelID]string{}
	}
	return &LabelMap{byName: byName, byID: byID}
}

func (m *LabelMap) IDOf(name string) (gmail.LabelID, bool) {
	id, ok := m.byName[name]
	return id, ok
}

func (m *LabelMap) NameOf(id gmail.LabelID) (string, bool) {
	name, ok := m.byID[id]
	return name, ok
}

func (m *LabelMap) register(name string, id gmail.LabelID) {
	m.byName[name] = id
	m.byID[id] = name
}

// Names resolves a label id set to the set of known label names. Unknown
// ids are skipped.
func (m *LabelMap) Names(ids []gmail.LabelID) map[string]struct{} {
	names := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if name, ok := m.byID[id]; ok {
			names[name] = struct{}{}
		}
	}
	return names
}

// Reconciler converges an item's live label state to the desired state
// computed by the rule and AI passes.
type Reconciler struct {
	Client gmail.Client
	Labels *LabelMap
	Log    *slog.Logger
}

// Apply resolves add/remove label names to ids and applies the minimal diff
// to the message as one batch mutation. Missing hierarchy nodes are created
// root to leaf and registered in the shared mapping, so the same name is
// never created twice within a run. Removes of labels the item does not
// carry are silent no-ops. On success msg.LabelIDs is updated in place so a
// later re-check sees accurate state without re-fetching.
func (r *Reconciler) Apply(ctx context.Context, msg *gmail.Message, addNames, removeNames []string) (gmail.LabelOps, error) {
	var ops gmail.LabelOps

	added := make(map[gmail.LabelID]struct{})
	for _, name := range addNames {
		id, err := r.ensurePath(ctx, name)
		if err != nil {
			return gmail.LabelOps{}, err
		}
		if msg.HasLabel(id) {
			continue
		}
		if _, dup := added[id]; dup {
			continue
		}
		added[id] = struct{}{}
		ops.Add = append(ops.Add, id)
	}

	removed := make(map[gmail.LabelID]struct{})
	for _, name := range removeNames {
		id, ok := r.Labels.IDOf(name)
		if !ok || !msg.HasLabel(id) {
			continue
		}
		if _, dup := removed[id]; dup {
			continue
		}
		removed[id] = struct{}{}
		ops.Remove = append(ops.Remove, id)
	}

	if ops.Empty() {
		return ops, nil
	}
	if err := r.Client.Modify(ctx, msg.ID, ops); err != nil {
		return gmail.LabelOps{}, fmt.Errorf("modify labels on %s: %w", msg.ID, err)
	}

	kept := msg.LabelIDs[:0]
	for _, id := range msg.LabelIDs {
		if _, drop := removed[id]; !drop {
			kept = append(kept, id)
		}
	}
	msg.LabelIDs = append(kept, ops.Add...)
	return ops, nil
}

// ensurePath walks the slash-delimited label path root to leaf, creating
// every missing node, and returns the leaf's id. A hierarchical label's
// parent must exist before the label itself can be created.
func (r *Reconciler) ensurePath(ctx context.Context, name string) (gmail.LabelID, error) {
	var (
		node string
		id   gmail.LabelID
	)
	for _, segment := range strings.Split(name, "/") {
		if node == "" {
			node = segment
		} else {
			node = node + "/" + segment
		}
		existing, ok := r.Labels.IDOf(node)
		if ok {
			id = existing
			continue
		}
		r.Log.Info("creating missing label", "label", node)
		created, err := r.Client.CreateLabel(ctx, node)
		if err != nil {
			return "", fmt.Errorf("create label %q: %w", node, err)
		}
		r.Labels.register(node, created)
		id = created
	}
	return id, nil
}
