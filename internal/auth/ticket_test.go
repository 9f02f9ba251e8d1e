package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// newTestTicketService uses a fixed secret so tests are deterministic.
func newTestTicketService(t *testing.T) *TicketService {
	t.Helper()
	ts, err := NewTicketService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTicketService: %v", err)
	}
	return ts
}

func TestNewTicketService_ShortSecret(t *testing.T) {
	if _, err := NewTicketService("short", time.Minute); err == nil {
		t.Fatal("NewTicketService() should reject secrets shorter than 16 chars")
	}
}

func TestTicket_RoundTrip(t *testing.T) {
	ts := newTestTicketService(t)

	ticket, exp, err := ts.Issue("cv37rs3pp9olc6atsptg", "png")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(ticket, ".") != 2 {
		t.Errorf("Issue() ticket doesn't look like a JWT: %q", ticket)
	}
	if time.Until(exp) > DefaultTicketTTL || time.Until(exp) < DefaultTicketTTL-time.Minute {
		t.Errorf("expiry %v not ~%v from now", exp, DefaultTicketTTL)
	}

	got, err := ts.Validate(ticket)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.ArtworkID != "cv37rs3pp9olc6atsptg" || got.Ext != "png" {
		t.Errorf("Validate() = %+v", got)
	}
}

func TestTicket_Expired(t *testing.T) {
	ts := newTestTicketService(t)

	ticket, _, err := ts.issueAt("a1", "", time.Now().Add(-time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("issueAt() error = %v", err)
	}

	_, err = ts.Validate(ticket)
	if !errors.Is(err, ErrTicketExpired) {
		t.Fatalf("Validate() error = %v, want ErrTicketExpired", err)
	}
}

func TestTicket_WrongSecret(t *testing.T) {
	ts1, _ := NewTicketService("correct-secret-32-chars-long!!!!", 0)
	ts2, _ := NewTicketService("wrong-secret-32-chars-long!!!!!!", 0)

	ticket, _, _ := ts1.Issue("a1", "")
	if _, err := ts2.Validate(ticket); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestTicket_Tampered(t *testing.T) {
	ts := newTestTicketService(t)
	ticket, _, _ := ts.Issue("a1", "")

	if _, err := ts.Validate(ticket[:len(ticket)-3] + "xxx"); err == nil {
		t.Fatal("Validate() should reject a tampered ticket")
	}
	if _, err := ts.Validate(""); err == nil {
		t.Fatal("Validate() should reject an empty ticket")
	}
}
