package core

import (
	"encoding/json"
	"testing"
)

func TestBuildSearchText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "strings in order",
			input: `{"name":"Red Shoes","color":"red"}`,
			want:  "red shoes red",
		},
		{
			name:  "non strings skipped",
			input: `{"name":"Widget","price":12,"active":true,"tags":["x"],"meta":{"k":"v"},"gone":null}`,
			want:  "widget",
		},
		{
			name:  "order follows fields",
			input: `{"b":"Second","a":"First"}`,
			want:  "second first",
		},
		{
			name:  "empty strings still joined",
			input: `{"a":"x","b":"","c":"y"}`,
			want:  "x  y",
		},
		{
			name:  "no strings",
			input: `{"n":1}`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fd FieldData
			if err := json.Unmarshal([]byte(tt.input), &fd); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if got := BuildSearchText(fd); got != tt.want {
				t.Errorf("BuildSearchText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildSearchTextDeterministic(t *testing.T) {
	fd := NewFieldData(Field{"name", "Ünïcode Thing"}, Field{"desc", "MiXeD"})
	first := BuildSearchText(fd)
	for i := 0; i < 10; i++ {
		if got := BuildSearchText(fd); got != first {
			t.Fatalf("Run %d produced %q, first run %q", i, got, first)
		}
	}
	if first != "ünïcode thing mixed" {
		t.Errorf("Unexpected folded text %q", first)
	}
}

func TestMatches(t *testing.T) {
	text := BuildSearchText(NewFieldData(Field{"name", "Red Shoes"}))

	cases := map[string]bool{
		"red":       true,
		"RED":       true,
		"shoes":     true,
		"red shoes": true,
		"d sh":      true,
		"shoes red": false,
		"zzz":       false,
	}
	for q, want := range cases {
		if got := Matches(text, q); got != want {
			t.Errorf("Matches(%q, %q) = %v, want %v", text, q, got, want)
		}
	}
}

func TestFilterItems(t *testing.T) {
	c := Collection{ID: "c1", Slug: "products"}
	items := []Item{
		NewItem(c, "1", NewFieldData(Field{"name", "Red Shoes"})),
		NewItem(c, "2", NewFieldData(Field{"name", "Blue Hat"})),
		NewItem(c, "3", NewFieldData(Field{"name", "Red Hat"})),
	}

	got := FilterItems(items, "hat")
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("Unexpected filter result: %+v", got)
	}
	if got := FilterItems(items, "zzz"); len(got) != 0 {
		t.Errorf("Expected no matches, got %d", len(got))
	}
}

func TestNewItemDerivesFields(t *testing.T) {
	c := Collection{ID: "c1", Slug: "products"}
	item := NewItem(c, "i1", NewFieldData(Field{"name", "Red Shoes"}, Field{"slug", "red-shoes"}, Field{"color", "red"}))

	if item.Name != "Red Shoes" || item.Slug != "red-shoes" {
		t.Errorf("Name/slug not derived: %+v", item)
	}
	if item.CollectionID != "c1" || item.CollectionSlug != "products" {
		t.Errorf("Collection not set: %+v", item)
	}
	if item.SearchText != "red shoes red-shoes red" {
		t.Errorf("Unexpected search text %q", item.SearchText)
	}

	item.SetFieldData(NewFieldData(Field{"name", "Other"}))
	if item.SearchText != "other" || item.Slug != "" {
		t.Errorf("Derived fields not recomputed: %+v", item)
	}
}
