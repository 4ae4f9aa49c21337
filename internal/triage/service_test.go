package triage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/rules"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type modifyCall struct {
	id  gmail.MessageID
	ops gmail.LabelOps
}

type fakeClient struct {
	labelsByName map[string]gmail.LabelID
	labelsByID   map[gmail.LabelID]string
	messages     map[gmail.MessageID]gmail.Message
	mainIDs      []gmail.MessageID
	spamIDs      []gmail.MessageID
	queries      []string
	created      []string
	nextLabel    int
	modifies     []modifyCall
	trashed      []gmail.MessageID
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		labelsByName: map[string]gmail.LabelID{},
		labelsByID:   map[gmail.LabelID]string{},
		messages:     map[gmail.MessageID]gmail.Message{},
	}
}

func (f *fakeClient) addLabel(name string, id gmail.LabelID) {
	f.labelsByName[name] = id
	f.labelsByID[id] = name
}

func (f *fakeClient) List(_ context.Context, q gmail.Query, _ string, _ int) (gmail.ListPage, error) {
	f.queries = append(f.queries, q.Raw)
	if q.Raw == "in:spam" {
		return gmail.ListPage{IDs: f.spamIDs}, nil
	}
	return gmail.ListPage{IDs: f.mainIDs}, nil
}

func (f *fakeClient) Get(_ context.Context, id gmail.MessageID) (gmail.Message, error) {
	msg, ok := f.messages[id]
	if !ok {
		return gmail.Message{}, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

func (f *fakeClient) ListLabels(_ context.Context) (map[string]gmail.LabelID, map[gmail.LabelID]string, error) {
	return f.labelsByName, f.labelsByID, nil
}

func (f *fakeClient) CreateLabel(_ context.Context, name string) (gmail.LabelID, error) {
	f.nextLabel++
	id := gmail.LabelID(fmt.Sprintf("Label_%02d", f.nextLabel))
	f.created = append(f.created, name)
	return id, nil
}

func (f *fakeClient) Modify(_ context.Context, id gmail.MessageID, ops gmail.LabelOps) error {
	f.modifies = append(f.modifies, modifyCall{id: id, ops: ops})
	return nil
}

func (f *fakeClient) Trash(_ context.Context, id gmail.MessageID) error {
	f.trashed = append(f.trashed, id)
	return nil
}

var _ gmail.Client = (*fakeClient)(nil)

type fakeStore struct {
	byPrefix map[string][]rules.Rule
}

func (f *fakeStore) FetchRules(_ context.Context, kindPrefix, _ string) ([]rules.Rule, error) {
	return f.byPrefix[kindPrefix], nil
}

type fakeClassifier struct {
	labels []string
	model  string
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ gmail.Message, _ []string) ([]string, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.labels, f.model, nil
}

func fixedClock() time.Time {
	return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func newTestService(client *fakeClient, store *fakeStore) *Service {
	svc := NewService(client, store, nil, nil, slogDiscard())
	svc.Clock = fixedClock
	return svc
}

func TestRunTrashesOnPreCheck(t *testing.T) {
	client := newFakeClient()
	client.mainIDs = []gmail.MessageID{"m1"}
	client.messages["m1"] = gmail.Message{
		ID:      "m1",
		Sender:  "deals@shop.com",
		Subject: "50% off now",
		Date:    fixedClock().Add(-time.Hour),
	}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{
		"blacklist": {{Expression: "'deals' in sender_domain or 'off' in subject", Scope: "all"}},
		"label":     {{Kind: "label:+PROMO", Expression: "'off' in subject", Scope: "all"}},
	}}

	svc := newTestService(client, store)
	if err := svc.Run(context.Background(), Spec{Account: "a@example.com", LookbackDays: 2}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(client.trashed) != 1 || client.trashed[0] != "m1" {
		t.Fatalf("expected m1 trashed, got %v", client.trashed)
	}
	if len(client.modifies) != 0 {
		t.Fatalf("label rules must not run for a pre-check delete, got %d modifies", len(client.modifies))
	}
	if len(client.created) != 0 {
		t.Fatalf("no labels should be created, got %v", client.created)
	}
}

func TestRunPostCheckFlip(t *testing.T) {
	client := newFakeClient()
	client.mainIDs = []gmail.MessageID{"m1"}
	client.messages["m1"] = gmail.Message{
		ID:      "m1",
		Sender:  "sales@shop.com",
		Subject: "50% off now",
		Date:    fixedClock().Add(-time.Hour),
	}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{
		"blacklist": {{Expression: "'promo' in labels", Scope: "all"}},
		"label":     {{Kind: "label:+PROMO", Expression: "'% off' in subject", Scope: "all"}},
	}}

	svc := newTestService(client, store)
	if err := svc.Run(context.Background(), Spec{Account: "a@example.com", LookbackDays: 2}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(client.created) != 1 || client.created[0] != "PROMO" {
		t.Fatalf("expected PROMO created, got %v", client.created)
	}
	if len(client.modifies) != 1 {
		t.Fatalf("expected 1 modify, got %d", len(client.modifies))
	}
	if len(client.modifies[0].ops.Add) != 1 || len(client.modifies[0].ops.Remove) != 0 {
		t.Fatalf("unexpected ops %+v", client.modifies[0].ops)
	}
	// The item survived the pre-check but the new label flips the re-check.
	if len(client.trashed) != 1 || client.trashed[0] != "m1" {
		t.Fatalf("expected m1 trashed after label flip, got %v", client.trashed)
	}
}

func TestRunStarredNeverDeleted(t *testing.T) {
	client := newFakeClient()
	client.addLabel("STARRED", "STARRED")
	client.mainIDs = []gmail.MessageID{"m1"}
	client.messages["m1"] = gmail.Message{
		ID:       "m1",
		Sender:   "anyone@anywhere.com",
		Subject:  "anything",
		Date:     fixedClock().Add(-time.Hour),
		LabelIDs: []gmail.LabelID{"STARRED"},
	}
	// Zero whitelist rows in the store, blacklist matches everything.
	store := &fakeStore{byPrefix: map[string][]rules.Rule{
		"blacklist": {{Expression: "'@' in sender", Scope: "all"}},
	}}

	svc := newTestService(client, store)
	if err := svc.Run(context.Background(), Spec{Account: "a@example.com", LookbackDays: 2}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(client.trashed) != 0 {
		t.Fatalf("starred item must never be trashed, got %v", client.trashed)
	}
}

func TestRunQueryContents(t *testing.T) {
	client := newFakeClient()
	store := &fakeStore{byPrefix: map[string][]rules.Rule{}}
	svc := newTestService(client, store)

	spec := Spec{Account: "a@example.com", BaseQuery: "in:inbox", LookbackDays: 2}
	if err := svc.Run(context.Background(), spec); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(client.queries) < 1 {
		t.Fatalf("expected at least one list call")
	}
	query := client.queries[0]
	for _, part := range []string{"in:inbox", "after:2024/03/08", "-in:sent", "-in:trash"} {
		if !strings.Contains(query, part) {
			t.Fatalf("query %q missing segment %q", query, part)
		}
	}
}

func TestRunConsolidatesSpam(t *testing.T) {
	client := newFakeClient()
	client.spamIDs = []gmail.MessageID{"s1", "s2"}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{}}

	svc := newTestService(client, store)
	if err := svc.Run(context.Background(), Spec{Account: "a@example.com", LookbackDays: 2}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(client.trashed) != 2 {
		t.Fatalf("expected both spam items trashed, got %v", client.trashed)
	}
	last := client.queries[len(client.queries)-1]
	if last != "in:spam" {
		t.Fatalf("expected final in:spam query, got %q", last)
	}
}

func TestRunAILabelling(t *testing.T) {
	client := newFakeClient()
	client.addLabel("AI/M1/SPAM", "L1")
	client.addLabel("AI/M1/PROMO", "L2")
	client.mainIDs = []gmail.MessageID{"m1"}
	client.messages["m1"] = gmail.Message{
		ID:       "m1",
		Sender:   "news@letters.com",
		Subject:  "weekly digest",
		Date:     fixedClock().Add(-time.Hour),
		LabelIDs: []gmail.LabelID{"L1", "L2"},
	}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{}}

	classifier := &fakeClassifier{labels: []string{"SPAM"}, model: "M1"}
	svc := newTestService(client, store)
	svc.Classifier = classifier

	spec := Spec{Account: "a@example.com", LookbackDays: 2, EnableAI: true, AILabels: []string{"SPAM", "PROMO"}}
	if err := svc.Run(context.Background(), spec); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if classifier.calls != 1 {
		t.Fatalf("expected 1 classify call, got %d", classifier.calls)
	}
	if len(client.modifies) != 1 {
		t.Fatalf("expected 1 modify, got %d", len(client.modifies))
	}
	ops := client.modifies[0].ops
	// SPAM is already applied; only the stale PROMO label comes off.
	if len(ops.Add) != 0 {
		t.Fatalf("expected no additions, got %v", ops.Add)
	}
	if len(ops.Remove) != 1 || ops.Remove[0] != "L2" {
		t.Fatalf("expected removal of L2, got %v", ops.Remove)
	}
}

func TestRunDryRunSkipsMutations(t *testing.T) {
	client := newFakeClient()
	client.mainIDs = []gmail.MessageID{"m1"}
	client.spamIDs = []gmail.MessageID{"s1"}
	client.messages["m1"] = gmail.Message{
		ID:      "m1",
		Sender:  "deals@shop.com",
		Subject: "50% off now",
		Date:    fixedClock().Add(-time.Hour),
	}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{
		"label": {{Kind: "label:+PROMO", Expression: "'% off' in subject", Scope: "all"}},
	}}

	svc := newTestService(client, store)
	spec := Spec{Account: "a@example.com", LookbackDays: 2, DryRun: true}
	if err := svc.Run(context.Background(), spec); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(client.created) != 0 || len(client.modifies) != 0 || len(client.trashed) != 0 {
		t.Fatalf("dry-run must not mutate: created=%v modifies=%d trashed=%v",
			client.created, len(client.modifies), client.trashed)
	}
}

type cancelAfterPacer struct {
	remaining int
	cancel    context.CancelFunc
}

func (p *cancelAfterPacer) Wait(ctx context.Context) error {
	if p.remaining <= 0 {
		p.cancel()
		return ctx.Err()
	}
	p.remaining--
	return nil
}

func TestRunStopsOnCancellation(t *testing.T) {
	client := newFakeClient()
	client.mainIDs = []gmail.MessageID{"m1", "m2", "m3"}
	for _, id := range client.mainIDs {
		client.messages[id] = gmail.Message{
			ID:      id,
			Sender:  "deals@shop.com",
			Subject: "50% off now",
			Date:    fixedClock().Add(-time.Hour),
		}
	}
	store := &fakeStore{byPrefix: map[string][]rules.Rule{
		"blacklist": {{Expression: "'off' in subject", Scope: "all"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newTestService(client, store)
	svc.Pace = &cancelAfterPacer{remaining: 1, cancel: cancel}

	err := svc.Run(ctx, Spec{Account: "a@example.com", LookbackDays: 2})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(client.trashed) != 1 {
		t.Fatalf("expected exactly one item processed before cancellation, got %v", client.trashed)
	}
}
