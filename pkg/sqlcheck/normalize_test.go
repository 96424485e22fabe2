package sqlcheck_test

import (
	"testing"

	"github.com/RogueScr1be/dinnerlock/pkg/sqlcheck"
)

func TestNormalize_StripsComments(t *testing.T) {
	got := sqlcheck.Normalize("SELECT id -- trailing note\nFROM meals /* block\ncomment */ ORDER BY id")
	want := "SELECT id FROM meals ORDER BY id"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_ReplacesLiterals(t *testing.T) {
	got := sqlcheck.Normalize("SELECT id FROM meals WHERE name = 'mac ''n'' cheese; DROP'")
	want := "SELECT id FROM meals WHERE name = ''"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_LiteralBeforeTokenScan(t *testing.T) {
	// A separator or banned keyword inside a literal must not survive into
	// the token scan.
	norm := sqlcheck.Normalize("SELECT id FROM decision_events WHERE household_key = $1 AND annotation = '; DELETE FROM sessions'")
	if vs := sqlcheck.Validate("SELECT id FROM decision_events WHERE household_key = $1 AND annotation = '; DELETE FROM sessions'"); len(vs) != 0 {
		t.Errorf("literal contents produced violations: %v (norm %q)", vs, norm)
	}
}

func TestNormalize_CollapsesWhitespaceAndTrailingSemicolon(t *testing.T) {
	got := sqlcheck.Normalize("  SELECT\tid\n  FROM meals ;  ")
	want := "SELECT id FROM meals"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalize_QuoteInsideComment(t *testing.T) {
	got := sqlcheck.Normalize("SELECT id FROM meals -- don't trip the string scanner\nWHERE id = $1")
	want := "SELECT id FROM meals WHERE id = $1"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}
