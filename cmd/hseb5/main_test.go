package main

import (
	"testing"

	"hseb5/internal/schema"
)

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Fatalf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(bad); err == nil {
			t.Fatalf("parseID(%q) accepted", bad)
		}
	}
}

func TestParseAssign(t *testing.T) {
	got, err := parseAssign([]string{"rumore.pdf=3", "vib.docx=7"})
	if err != nil {
		t.Fatalf("parseAssign: %v", err)
	}
	if got["rumore.pdf"] != 3 || got["vib.docx"] != 7 {
		t.Fatalf("unexpected map %v", got)
	}
	if _, err := parseAssign([]string{"rumore.pdf"}); err == nil {
		t.Fatalf("missing '=' accepted")
	}
	if _, err := parseAssign([]string{"rumore.pdf=x"}); err == nil {
		t.Fatalf("non numeric id accepted")
	}
}

func TestSplitPath(t *testing.T) {
	if p := splitPath("  "); p != nil {
		t.Fatalf("blank path = %v", p)
	}
	p := splitPath("misure.valore")
	if len(p) != 2 || p.String() != (schema.Path{"misure", "valore"}).String() {
		t.Fatalf("splitPath = %v", p)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := truncate("àbcdef", 4); got != "àbc…" {
		t.Fatalf("truncate = %q", got)
	}
}
