package token

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer() *Issuer {
	return NewIssuer("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer()

	tok, err := issuer.Issue("a@x.com", KindAccess)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	subject, err := issuer.Verify(tok, KindAccess)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if subject != "a@x.com" {
		t.Fatalf("subject mismatch: got %q want %q", subject, "a@x.com")
	}
}

func TestVerify_KindMismatch(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer()

	refresh, err := issuer.Issue("a@x.com", KindRefresh)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := issuer.Verify(refresh, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh used as access, got %v", err)
	}

	access, err := issuer.Issue("a@x.com", KindAccess)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := issuer.Verify(access, KindRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access used as refresh, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer()

	tok, err := issuer.IssueWithTTL("a@x.com", KindAccess, -1*time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL error: %v", err)
	}
	if _, err := issuer.Verify(tok, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newTestIssuer().Issue("a@x.com", KindAccess)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other := NewIssuer("other-secret", 15*time.Minute, 7*24*time.Hour)
	if _, err := other.Verify(tok, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer()

	for _, tok := range []string{"", "not.a.jwt", "aaaa.bbbb"} {
		if _, err := issuer.Verify(tok, KindAccess); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", tok, err)
		}
	}
}

func TestPair_BothKinds(t *testing.T) {
	t.Parallel()
	issuer := newTestIssuer()

	access, refresh, err := issuer.Pair("a@x.com")
	if err != nil {
		t.Fatalf("Pair error: %v", err)
	}
	if _, err := issuer.Verify(access, KindAccess); err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if _, err := issuer.Verify(refresh, KindRefresh); err != nil {
		t.Fatalf("refresh token invalid: %v", err)
	}
}
