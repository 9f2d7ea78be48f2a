package core

import (
	"reflect"
	"testing"
)

var testCollections = []Collection{
	{ID: "c2", Slug: "blog-posts", DisplayName: "Blog Posts", SingularName: "Blog Post"},
	{ID: "c1", Slug: "products", DisplayName: "Products", SingularName: "Product"},
	{ID: "c3", Slug: "team", DisplayName: "Team Members", SingularName: "Team Member"},
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      []string
	}{
		{"wildcard", "all", []string{"c1", "c2", "c3"}},
		{"wildcard any case", "ALL", []string{"c1", "c2", "c3"}},
		{"by slug", "products", []string{"c1"}},
		{"by display name", "Blog Posts", []string{"c2"}},
		{"by singular name", "team member", []string{"c3"}},
		{"case insensitive", "PRODUCTS", []string{"c1"}},
		{"list with spaces", " products , team ", []string{"c1", "c3"}},
		{"unknown dropped", "products,unknown", []string{"c1"}},
		{"all unknown", "nope", nil},
		{"duplicates collapsed", "products,Product,PRODUCTS", []string{"c1"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.requested, testCollections)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestResolveTieBreak(t *testing.T) {
	known := []Collection{
		{ID: "b", Slug: "news", DisplayName: "Updates"},
		{ID: "a", Slug: "updates", DisplayName: "News"},
	}

	res := ResolveDetailed("news", known)
	if !reflect.DeepEqual(res.IDs, []string{"a"}) {
		t.Errorf("Expected lowest id to win, got %v", res.IDs)
	}
	if !reflect.DeepEqual(res.Ambiguous, []string{"news"}) {
		t.Errorf("Expected news to be reported ambiguous, got %v", res.Ambiguous)
	}

	// Input order must not matter.
	reversed := []Collection{known[1], known[0]}
	if got := Resolve("news", reversed); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Tie-break depends on input order: %v", got)
	}
}

func TestResolveDetailedUnmatched(t *testing.T) {
	res := ResolveDetailed("products, Ghost ,", testCollections)
	if !reflect.DeepEqual(res.IDs, []string{"c1"}) {
		t.Errorf("Unexpected ids %v", res.IDs)
	}
	if !reflect.DeepEqual(res.Unmatched, []string{"ghost"}) {
		t.Errorf("Unexpected unmatched %v", res.Unmatched)
	}
}

func TestResolveDoesNotReorderInput(t *testing.T) {
	known := make([]Collection, len(testCollections))
	copy(known, testCollections)
	Resolve("all", known)
	if !reflect.DeepEqual(known, testCollections) {
		t.Error("Resolve modified its input slice")
	}
}
