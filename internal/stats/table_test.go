package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Outcome", "Score", "Keys"}
	rows := [][]string{
		{"matched", "0.92", "43"},
		{"rejected", "0.41", "7"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Outcome  Score Keys" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "matched   0.92   43" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "rejected  0.41    7" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestFormatTableUsesDisplayWidth(t *testing.T) {
	headers := []string{"User", "Keys"}
	rows := [][]string{
		{"日本", "12"},
		{"bob", "3"},
	}

	lines := formatTable(headers, rows, map[int]bool{1: true})
	want := []string{
		"User Keys",
		"日本   12",
		"bob     3",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}
