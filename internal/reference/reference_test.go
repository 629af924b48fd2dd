package reference

import (
	"errors"
	"strings"
	"testing"
	"time"

	"estateBack/internal/models"
)

func fixedGenerator(secret string, at time.Time) *Generator {
	g := NewGenerator(secret)
	g.now = func() time.Time { return at }
	return g
}

func TestGenerateFormat(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	g := fixedGenerator("", at)

	ref := g.Generate(42)
	if ref != "unlock_1700000000123_42" {
		t.Fatalf("unexpected reference %q", ref)
	}
	if got := g.GenerateFor(42, 7); got != ref {
		t.Fatalf("expected unbound reference without secret, got %q", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator("")
	for _, clientID := range []int{1, 9, 1234, 987654321} {
		p, err := Parse(g.Generate(clientID))
		if err != nil {
			t.Fatalf("parse client %d: %v", clientID, err)
		}
		if p.ClientID != clientID {
			t.Fatalf("expected client %d, got %d", clientID, p.ClientID)
		}
		if p.Prefix != Prefix {
			t.Fatalf("unexpected prefix %q", p.Prefix)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"single segment": "bad",
		"two segments":   "unlock_123",
		"wrong prefix":   "refund_123_4",
		"bad timestamp":  "unlock_abc_4",
		"bad client":     "unlock_123_x",
		"zero client":    "unlock_123_0",
		"short tag":      "unlock_123_4_abc",
		"too many":       "unlock_123_4_0123456789abcdef_x",
	}
	for name, ref := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(ref)
			if !errors.Is(err, models.ErrInvalidReference) {
				t.Fatalf("expected ErrInvalidReference, got %v", err)
			}
		})
	}
}

func TestBindingTag(t *testing.T) {
	g := fixedGenerator("s3cret", time.UnixMilli(1700000000000))

	ref := g.GenerateFor(5, 11)
	if !strings.HasPrefix(ref, "unlock_1700000000000_5_") {
		t.Fatalf("unexpected bound reference %q", ref)
	}
	p, err := Parse(ref)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Base() != "unlock_1700000000000_5" {
		t.Fatalf("unexpected base %q", p.Base())
	}
	if err := g.Check(p, 11); err != nil {
		t.Fatalf("expected tag to match property 11: %v", err)
	}
	if err := g.Check(p, 12); !errors.Is(err, models.ErrInvalidReference) {
		t.Fatalf("expected mismatch for property 12, got %v", err)
	}

	unbound, _ := Parse("unlock_1700000000000_5")
	if err := g.Check(unbound, 11); !errors.Is(err, models.ErrInvalidReference) {
		t.Fatalf("expected unbound reference to be rejected, got %v", err)
	}
	if err := NewGenerator("").Check(unbound, 11); err != nil {
		t.Fatalf("expected no check without secret, got %v", err)
	}
}
