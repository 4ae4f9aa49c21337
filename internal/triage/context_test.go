package triage

import (
	"testing"
	"time"

	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/ruleexpr"
)

func testLabelMap() *LabelMap {
	return NewLabelMap(
		map[string]gmail.LabelID{"STARRED": "STARRED", "Receipts": "L1"},
		map[gmail.LabelID]string{"STARRED": "STARRED", "L1": "Receipts"},
	)
}

func envString(t *testing.T, env ruleexpr.Env, key string) string {
	t.Helper()
	v, ok := env[key]
	if !ok {
		t.Fatalf("binding %q missing", key)
	}
	if v.Kind != ruleexpr.KindString {
		t.Fatalf("binding %q is %s, want string", key, v.Kind)
	}
	return v.Str
}

func TestBuildContextNormalization(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	msg := gmail.Message{
		ID:          "m1",
		Sender:      "  Deals Team <DEALS@Shop.COM>  ",
		Subject:     "  Huge\t50% OFF   Sale ",
		Snippet:     "Act   NOW",
		Text:        "",
		Date:        now.Add(-2 * time.Hour),
		LabelIDs:    []gmail.LabelID{"STARRED", "L1", "UnknownID"},
		Unsubscribe: "<mailto:unsub@shop.com>",
	}

	ec := BuildContext(msg, testLabelMap(), now)

	if got := envString(t, ec.Env, "sender"); got != "deals team <deals@shop.com>" {
		t.Fatalf("sender = %q", got)
	}
	if got := envString(t, ec.Env, "sender_alias"); got != "deals team <deals" {
		t.Fatalf("sender_alias = %q", got)
	}
	if got := envString(t, ec.Env, "sender_domain"); got != "shop.com>" {
		t.Fatalf("sender_domain = %q", got)
	}
	if got := envString(t, ec.Env, "subject"); got != "huge 50% off sale" {
		t.Fatalf("subject = %q", got)
	}
	if got := envString(t, ec.Env, "subject_snippet"); got != "huge 50% off sale act now" {
		t.Fatalf("subject_snippet = %q", got)
	}
	if got := envString(t, ec.Env, "content"); got != "huge 50% off sale act now " {
		t.Fatalf("content = %q", got)
	}

	labels := ec.Env["labels"]
	if labels.Kind != ruleexpr.KindSet {
		t.Fatalf("labels binding is %s, want set", labels.Kind)
	}
	if _, ok := labels.Set["starred"]; !ok {
		t.Fatalf("labels missing starred: %v", labels.Set)
	}
	if _, ok := labels.Set["receipts"]; !ok {
		t.Fatalf("labels missing receipts: %v", labels.Set)
	}
	if len(labels.Set) != 2 {
		t.Fatalf("unknown ids must be skipped, got %v", labels.Set)
	}

	tags := ec.Env["tags"]
	if _, ok := tags.Set["unsubscribe"]; !ok {
		t.Fatalf("expected unsubscribe tag, got %v", tags.Set)
	}

	timediff := ec.Env["timediff"]
	if timediff.Kind != ruleexpr.KindNumber || timediff.Num != 7200 {
		t.Fatalf("timediff = %+v, want 7200", timediff)
	}

	// Working set keeps original casing for reconciliation.
	if _, ok := ec.Labels["Receipts"]; !ok {
		t.Fatalf("working set missing Receipts: %v", ec.Labels)
	}
}

func TestBuildContextEdgeCases(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("sender-without-at", func(t *testing.T) {
		ec := BuildContext(gmail.Message{Sender: "MAILER-DAEMON", Date: now}, testLabelMap(), now)
		if got := envString(t, ec.Env, "sender_alias"); got != "mailer-daemon" {
			t.Fatalf("sender_alias = %q", got)
		}
		if got := envString(t, ec.Env, "sender_domain"); got != "" {
			t.Fatalf("sender_domain = %q, want empty", got)
		}
	})

	t.Run("no-unsubscribe-header", func(t *testing.T) {
		ec := BuildContext(gmail.Message{Sender: "a@b.c", Date: now}, testLabelMap(), now)
		if len(ec.Env["tags"].Set) != 0 {
			t.Fatalf("expected empty tags, got %v", ec.Env["tags"].Set)
		}
	})

	t.Run("time-constants", func(t *testing.T) {
		ec := BuildContext(gmail.Message{Sender: "a@b.c", Date: now.Add(-48 * time.Hour)}, testLabelMap(), now)
		got, err := ruleexpr.Evaluate("timediff >= 2 * day and timediff < week", ec.Env)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !got {
			t.Fatalf("expected time-constant comparison to hold")
		}
	})
}
