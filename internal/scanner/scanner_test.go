package scanner

import (
	"testing"

	"github.com/saugns/sgscore-go/internal/source"
)

func TestGetCCollapsesSpaceRuns(t *testing.T) {
	s := New(source.NewFromString("t", "a   b"))
	if c := s.GetC(); c != 'a' {
		t.Fatalf("got %q, want 'a'", c)
	}
	if c := s.GetC(); c != Space {
		t.Fatalf("got %q, want Space", c)
	}
	if c := s.GetC(); c != 'b' {
		t.Fatalf("got %q, want 'b'", c)
	}
}

func TestGetCStripsLineAndBlockComments(t *testing.T) {
	s := New(source.NewFromString("t", "a # line comment\nb /* block */c"))
	if c := s.GetC(); c != 'a' {
		t.Fatalf("got %q, want 'a'", c)
	}
	if c := s.GetC(); c != Space {
		t.Fatalf("got %q, want Space", c)
	}
	if c := s.GetC(); c != Lnbrk {
		t.Fatalf("got %q, want Lnbrk", c)
	}
	if c := s.GetC(); c != 'b' {
		t.Fatalf("got %q, want 'b'", c)
	}
	if c := s.GetC(); c != Space {
		t.Fatalf("got %q, want Space", c)
	}
	if c := s.GetC(); c != 'c' {
		t.Fatalf("got %q, want 'c'", c)
	}
}

func TestGetCCollapsesCRLF(t *testing.T) {
	s := New(source.NewFromString("t", "a\r\nb\rc"))
	s.GetC() // 'a'
	if c := s.GetC(); c != Lnbrk {
		t.Fatalf("got %q, want Lnbrk for CRLF", c)
	}
	s.GetC() // 'b'
	if c := s.GetC(); c != Lnbrk {
		t.Fatalf("got %q, want Lnbrk for lone CR", c)
	}
}

func TestTryCRestoresStateOnMismatch(t *testing.T) {
	s := New(source.NewFromString("t", "ab"))
	if s.TryC('x') {
		t.Fatal("TryC('x') should not match 'a'")
	}
	if c := s.GetC(); c != 'a' {
		t.Fatalf("after failed TryC, got %q, want 'a'", c)
	}
}

func TestTryCConsumesOnMatch(t *testing.T) {
	s := New(source.NewFromString("t", "ab"))
	if !s.TryC('a') {
		t.Fatal("TryC('a') should match")
	}
	if c := s.GetC(); c != 'b' {
		t.Fatalf("after matched TryC, got %q, want 'b'", c)
	}
}

func TestUnterminatedBlockCommentRecordsError(t *testing.T) {
	s := New(source.NewFromString("t", "/* never closed"))
	s.GetC()
	if len(s.Diagnostics) == 0 || !s.Diagnostics[0].IsError {
		t.Fatal("expected an error diagnostic for unterminated block comment")
	}
}
