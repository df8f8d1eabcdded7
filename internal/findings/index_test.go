package findings

import "testing"

func TestIndexAddAndSearch(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer ix.Close()

	chunks := []Chunk{
		{DocID: "1", URL: "https://example.com/widgets", Title: "Widgets", Text: "blue widgets on sale, widget prices listed per unit"},
		{DocID: "2", URL: "https://example.com/about", Title: "About", Text: "company history and contact information"},
		{DocID: "3", URL: "https://example.com/gadgets", Title: "Gadgets", Text: "gadget catalog with specifications"},
	}
	for _, c := range chunks {
		if err := ix.Add(c); err != nil {
			t.Fatalf("Add %s: %v", c.DocID, err)
		}
	}
	if ix.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ix.Len())
	}

	hits, err := ix.Search("widgets", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexed term")
	}
	if hits[0].DocID != "1" {
		t.Fatalf("top hit = %s, want doc 1", hits[0].DocID)
	}
	if hits[0].Rank != 1 || hits[0].URL != "https://example.com/widgets" {
		t.Fatalf("hit metadata = %+v", hits[0])
	}
}

func TestIndexReplacesSameDocID(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer ix.Close()

	if err := ix.Add(Chunk{DocID: "1", Text: "first version"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix.Add(Chunk{DocID: "1", Text: "second version"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d after replacement, want 1", ix.Len())
	}
	if got := ix.Chunks()[0].Text; got != "second version" {
		t.Fatalf("stored text = %q", got)
	}
}

func TestSearchResultLimit(t *testing.T) {
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer ix.Close()

	for i := 0; i < 5; i++ {
		if err := ix.Add(Chunk{DocID: string(rune('a' + i)), Text: "shared keyword content"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	hits, err := ix.Search("keyword", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) > 2 {
		t.Fatalf("got %d hits, want at most 2", len(hits))
	}
}
