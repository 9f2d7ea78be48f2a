package storage

import (
	"reflect"
	"testing"
)

func TestBuildFTSQuery(t *testing.T) {
	tests := map[string]string{
		"red":          `"red"*`,
		"  red  shoes": `"red"* "shoes"*`,
		`say "hi"`:     `"say"* """hi"""*`,
		"NOT red":      `"NOT"* "red"*`,
		"":             "",
		" \t ":         "",
		"-- red ;":     `"red"*`,
		"'; --":        "",
	}
	for in, want := range tests {
		if got := BuildFTSQuery(in); got != want {
			t.Errorf("BuildFTSQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"red":  "%red%",
		"50%":  `%50\%%`,
		"a_b":  `%a\_b%`,
		`c:\x`: `%c:\\x%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChunk(t *testing.T) {
	if got := chunk(5, 2); !reflect.DeepEqual(got, [][2]int{{0, 2}, {2, 4}, {4, 5}}) {
		t.Errorf("Unexpected windows %v", got)
	}
	if got := chunk(3, 0); !reflect.DeepEqual(got, [][2]int{{0, 3}}) {
		t.Errorf("Unexpected windows for unbounded size %v", got)
	}
	if got := chunk(0, 400); len(got) != 0 {
		t.Errorf("Expected no windows, got %v", got)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3, 0, questionMark); got != "?, ?, ?" {
		t.Errorf("Unexpected placeholders %q", got)
	}
	if got := placeholders(2, 4, dollarMarker); got != "$5, $6" {
		t.Errorf("Unexpected placeholders %q", got)
	}
}
