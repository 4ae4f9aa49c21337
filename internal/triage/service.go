package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/rules"
)

const defaultPageSize = 100

// Pacer gates the per-item loop so we respect external rate limits.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Spec describes one account cleanup run.
type Spec struct {
	Account      string
	BaseQuery    string // optional per-account query restriction
	LookbackDays int
	EnableAI     bool
	AILabels     []string // candidate catalog offered to the classifier
	PageSize     int
	MaxPages     int
	DryRun       bool
}

// Service runs the rule evaluation and label reconciliation pipeline for one
// account at a time. Processing within an account is strictly sequential:
// the label mapping is shared mutable state across its items.
type Service struct {
	Client     gmail.Client
	Store      rules.Store
	Classifier Classifier
	Log        *slog.Logger
	Clock      func() time.Time
	Pace       Pacer
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, store rules.Store, classifier Classifier, pace Pacer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Client:     client,
		Store:      store,
		Classifier: classifier,
		Log:        log,
		Clock:      time.Now,
		Pace:       pace,
	}
}

// Run executes a full cleanup for the account: stream matching items, apply
// the delete decision and label rules to each, then consolidate spam.
// Collaborator failures abort the run; proceeding with unknown label state
// is worse than stopping. Cancellation stops the loop after the current
// item — each item's mutation is a single atomic batch, so no partial state
// is left behind.
func (s *Service) Run(ctx context.Context, spec Spec) error {
	s.Log.Info("cleanup triggered", "account", spec.Account, "query", spec.BaseQuery, "lookback_days", spec.LookbackDays)

	whitelist, err := s.Store.FetchRules(ctx, rules.KindWhitelist, spec.Account)
	if err != nil {
		return fmt.Errorf("fetch whitelist rules: %w", err)
	}
	blacklist, err := s.Store.FetchRules(ctx, rules.KindBlacklist, spec.Account)
	if err != nil {
		return fmt.Errorf("fetch blacklist rules: %w", err)
	}
	labelRules, err := s.Store.FetchRules(ctx, rules.KindLabelPrefix, spec.Account)
	if err != nil {
		return fmt.Errorf("fetch label rules: %w", err)
	}
	s.Log.Info("rules loaded",
		"account", spec.Account,
		"whitelist", len(whitelist),
		"blacklist", len(blacklist),
		"label_rules", len(labelRules),
	)

	byName, byID, err := s.Client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	labels := NewLabelMap(byName, byID)

	decider := DeleteDecider{Whitelist: whitelist, Blacklist: blacklist, Log: s.Log}
	ruler := LabelRuler{Rules: labelRules, Log: s.Log}
	reconciler := &Reconciler{Client: s.Client, Labels: labels, Log: s.Log}

	query := s.buildQuery(spec)
	processed := 0
	err = s.forEachMessage(ctx, query, spec, func(id gmail.MessageID) error {
		if procErr := s.processItem(ctx, id, spec, decider, ruler, reconciler, labels); procErr != nil {
			return procErr
		}
		processed++
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.Info("cleanup finished", "account", spec.Account, "processed", processed)

	return s.Consolidate(ctx, spec)
}

// processItem runs the per-item pipeline: fetch, pre-check against the
// original label state, label rules plus AI adaptation, reconciliation,
// then a re-check against the updated state before any trash action.
func (s *Service) processItem(
	ctx context.Context,
	id gmail.MessageID,
	spec Spec,
	decider DeleteDecider,
	ruler LabelRuler,
	reconciler *Reconciler,
	labels *LabelMap,
) error {
	msg, err := s.Client.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get message %s: %w", id, err)
	}

	ec := BuildContext(msg, labels, s.Clock())
	trash := decider.ShouldDelete(ec)

	if !trash {
		working := ec.Labels
		var adds, removes []string

		if ruleErr := ruler.Apply(ec, working, &adds, &removes); ruleErr != nil {
			// Corrupt rule rows are surfaced but do not stop the run.
			s.Log.Error("label rule configuration error", "account", spec.Account, "error", ruleErr)
		}

		if spec.EnableAI && s.Classifier != nil {
			suggested, model, aiErr := s.Classifier.Classify(ctx, msg, spec.AILabels)
			if aiErr != nil {
				return fmt.Errorf("classify message %s: %w", id, aiErr)
			}
			ApplyAILabels(labels.Names(msg.LabelIDs), suggested, model, &adds, &removes)
		}

		if spec.DryRun {
			if len(adds) > 0 || len(removes) > 0 {
				s.Log.Info("dry-run: would reconcile labels", "message", id, "add", adds, "remove", removes)
			}
			return nil
		}

		if _, recErr := reconciler.Apply(ctx, &msg, adds, removes); recErr != nil {
			return recErr
		}

		// Label changes can flip the delete decision; honor the freshest
		// state before the irreversible trash action.
		trash = decider.ShouldDelete(BuildContext(msg, labels, s.Clock()))
	}

	if !trash {
		return nil
	}
	if spec.DryRun {
		s.Log.Info("dry-run: would trash", "message", id)
		return nil
	}
	if err := s.Client.Trash(ctx, id); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	s.Log.Info("trashed", "message", id, "sender", ec.Sender)
	return nil
}

// Consolidate trashes everything sitting in spam, paced like the main loop.
func (s *Service) Consolidate(ctx context.Context, spec Spec) error {
	count := 0
	err := s.forEachMessage(ctx, gmail.Query{Raw: "in:spam"}, spec, func(id gmail.MessageID) error {
		if spec.DryRun {
			count++
			return nil
		}
		if err := s.Client.Trash(ctx, id); err != nil {
			return fmt.Errorf("trash spam %s: %w", id, err)
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("consolidate spam: %w", err)
	}
	s.Log.Info("spam consolidated", "account", spec.Account, "count", count, "dry_run", spec.DryRun)
	return nil
}

// forEachMessage pages through the query results, pacing before each item.
func (s *Service) forEachMessage(ctx context.Context, q gmail.Query, spec Spec, fn func(gmail.MessageID) error) error {
	pageSize := spec.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pages := 0
	token := ""
	for {
		page, err := s.Client.List(ctx, q, token, pageSize)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		for _, id := range page.IDs {
			if s.Pace != nil {
				if err := s.Pace.Wait(ctx); err != nil {
					return err
				}
			}
			if err := fn(id); err != nil {
				return err
			}
		}
		pages++
		if page.NextPageToken == "" || (spec.MaxPages > 0 && pages >= spec.MaxPages) {
			return nil
		}
		token = page.NextPageToken
	}
}

// buildQuery combines the account's base query with the lookback window and
// the standing sent/trash exclusions.
func (s *Service) buildQuery(spec Spec) gmail.Query {
	parts := make([]string, 0, 4)
	if strings.TrimSpace(spec.BaseQuery) != "" {
		parts = append(parts, strings.TrimSpace(spec.BaseQuery))
	}
	after := s.Clock().AddDate(0, 0, -spec.LookbackDays)
	parts = append(parts, fmt.Sprintf("after:%s", after.Format("2006/01/02")), "-in:sent", "-in:trash")
	return gmail.Query{Raw: strings.Join(parts, " ")}
}
