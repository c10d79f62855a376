package catalog

import (
	"testing"
)

func searchIndex() []Descriptor {
	return []Descriptor{
		{ID: "mod-1", Name: "Elementalist Lux", Author: "aria", Tags: []string{"skin", "lux"}},
		{ID: "mod-2", Name: "Frost Queen Janna", Author: "borealis", Tags: []string{"skin"}},
		{ID: "mod-3", Name: "Dark Star Thresh", Author: "aria", Tags: []string{"skin", "chroma"}},
	}
}

func TestSearchEmptyQueryReturnsIndex(t *testing.T) {
	index := searchIndex()
	got := Search(index, "  ")
	if len(got) != len(index) {
		t.Fatalf("got %d entries, want %d", len(got), len(index))
	}
}

func TestSearchSubstringMatch(t *testing.T) {
	got := Search(searchIndex(), "lux")
	if len(got) != 1 || got[0].ID != "mod-1" {
		t.Fatalf("got %+v", got)
	}
}

func TestSearchMatchesAuthor(t *testing.T) {
	got := Search(searchIndex(), "aria")
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for _, desc := range got {
		if desc.Author != "aria" {
			t.Errorf("unexpected match %+v", desc)
		}
	}
}

func TestSearchFuzzyTokenMatch(t *testing.T) {
	// Word order and extra words differ, token overlap still matches.
	got := Search(searchIndex(), "janna frost")
	if len(got) == 0 || got[0].ID != "mod-2" {
		t.Fatalf("got %+v", got)
	}
}

func TestSearchNoMatch(t *testing.T) {
	if got := Search(searchIndex(), "teemo"); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestSearchSubstringOutranksFuzzy(t *testing.T) {
	index := []Descriptor{
		{ID: "a", Name: "star guardian collection dark theme"},
		{ID: "b", Name: "Dark Star Thresh"},
	}
	got := Search(index, "dark star")
	if len(got) < 1 || got[0].ID != "b" {
		t.Fatalf("got %+v", got)
	}
}
