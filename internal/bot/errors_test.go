package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-hadith-bot/internal/hadith"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CatUnknown},
		{"status 429", &hadith.StatusError{Code: 429}, CatRateLimited},
		{"status 401", &hadith.StatusError{Code: 401}, CatUnauthorized},
		{"status 403", &hadith.StatusError{Code: 403}, CatForbidden},
		{"status 404", &hadith.StatusError{Code: 404}, CatUpstreamBadResponse},
		{"status 503", &hadith.StatusError{Code: 503}, CatUpstreamUnavailable},
		{"wrapped status", fmt.Errorf("search: %w", &hadith.StatusError{Code: 500}), CatUpstreamUnavailable},
		{"record not found", gorm.ErrRecordNotFound, CatStorageFailure},
		{"duplicated key", gorm.ErrDuplicatedKey, CatStorageFailure},
		{"sqlite text", errors.New("sqlite: disk I/O error"), CatStorageFailure},
		{"constraint text", errors.New("UNIQUE constraint failed: favorites"), CatStorageFailure},
		{"deadline", context.DeadlineExceeded, CatUpstreamUnavailable},
		{"conn refused", syscall.ECONNREFUSED, CatUpstreamUnavailable},
		{"conn refused text", errors.New("dial tcp: connection refused"), CatUpstreamUnavailable},
		{"no such host", errors.New("lookup api: no such host"), CatUpstreamUnavailable},
		{"invalid query", hadith.ErrInvalidQuery, CatInvalidInput},
		{"empty record", hadith.ErrEmptyRecord, CatInvalidInput},
		{"unauthorized", ErrUnauthorized, CatUnauthorized},
		{"forbidden", fmt.Errorf("admin: %w", ErrForbidden), CatForbidden},
		{"rate limit text", errors.New("rate limit hit"), CatRateLimited},
		{"too many requests text", errors.New("too many requests"), CatRateLimited},
		{"anything else", errors.New("wat"), CatUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("%s: Classify(%v) = %s; want %s", c.name, c.err, got, c.want)
		}
	}
}

func TestClassify_StatusBeatsMessageSignatures(t *testing.T) {
	// A 429 whose message mentions the database must still classify by status.
	err := fmt.Errorf("database search: %w", &hadith.StatusError{Code: 429})
	if got := Classify(err); got != CatRateLimited {
		t.Fatalf("Classify = %s; want rate_limited (status takes precedence)", got)
	}
}

func TestRespond_MessageKind(t *testing.T) {
	tr := &fakeTransport{}
	r := NewResponder(tr)

	req := &Request{Update: messageUpdate(&Sender{ID: 1}, "query")}
	r.Respond(context.Background(), req, "cmd:search", &hadith.StatusError{Code: 503})

	if len(tr.sent) != 1 {
		t.Fatalf("expected one message, got %#v", tr.sent)
	}
	msg := tr.sent[0]
	if !strings.Contains(msg.text, "غير متاحة") {
		t.Errorf("wrong template: %q", msg.text)
	}
	if !strings.Contains(msg.text, "رمز الخطأ: ") {
		t.Errorf("missing correlation code: %q", msg.text)
	}
	// Retryable category: a retry keyboard is attached.
	if msg.kb == nil || len(msg.kb.Rows) != 1 {
		t.Errorf("expected retry keyboard, got %#v", msg.kb)
	}
	if len(tr.edits) != 0 || len(tr.acks) != 0 {
		t.Error("message responses must not edit or ack")
	}
}

func TestRespond_NonRetryableHasNoKeyboard(t *testing.T) {
	tr := &fakeTransport{}
	r := NewResponder(tr)

	req := &Request{Update: messageUpdate(&Sender{ID: 1}, "x")}
	r.Respond(context.Background(), req, "cmd:search", hadith.ErrInvalidQuery)

	if len(tr.sent) != 1 || tr.sent[0].kb != nil {
		t.Fatalf("invalid input must not offer retry, got %#v", tr.sent)
	}
}

func TestRespond_CallbackKindAcksAndEdits(t *testing.T) {
	tr := &fakeTransport{}
	r := NewResponder(tr)

	req := &Request{Update: Update{
		Kind: KindCallback, ChatID: 100, MessageID: 42,
		CallbackID: "cb1", CallbackData: "random",
		From: &Sender{ID: 1},
	}}
	r.Respond(context.Background(), req, "cb:random", errors.New("wat"))

	if len(tr.acks) != 1 || tr.acks[0].callbackID != "cb1" {
		t.Fatalf("expected callback ack, got %#v", tr.acks)
	}
	if len(tr.edits) != 1 || tr.edits[0].messageID != 42 {
		t.Fatalf("expected message edit, got %#v", tr.edits)
	}
	if len(tr.sent) != 0 {
		t.Fatalf("callback responses edit in place, got %#v", tr.sent)
	}
	// Retry button carries the original callback payload.
	kb := tr.edits[0].kb
	if kb == nil || kb.Rows[0][0].Data != "random" {
		t.Fatalf("retry payload = %#v", kb)
	}
}

func TestRespond_FallbackOnSendFailure(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("transport down")}
	r := NewResponder(tr)

	req := &Request{Update: messageUpdate(&Sender{ID: 1}, "x")}
	// Must not panic or loop; both sends fail and are only logged.
	r.Respond(context.Background(), req, "cmd:search", errors.New("wat"))

	if len(tr.sent) != 2 {
		t.Fatalf("expected primary send plus one plaintext fallback, got %d", len(tr.sent))
	}
	if tr.sent[1].kb != nil {
		t.Fatal("fallback must be plaintext without a keyboard")
	}
}
