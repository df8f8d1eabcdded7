// Package findings keeps an in-memory full-text index of the page content
// collected during one exploration session.
package findings

import (
	"sync"

	"github.com/blevesearch/bleve"
)

// Chunk is one indexed piece of page content.
type Chunk struct {
	DocID string `json:"doc_id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Hit is one ranked search result.
type Hit struct {
	DocID   string  `json:"doc_id"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Index is a per-session BM25 index over collected content chunks.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	meta map[string]Chunk
}

// NewIndex builds an empty memory-only index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx, meta: make(map[string]Chunk)}, nil
}

// Add indexes one chunk, replacing any prior chunk with the same DocID.
func (ix *Index) Add(chunk Chunk) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.meta[chunk.DocID] = chunk
	return ix.idx.Index(chunk.DocID, chunk)
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.meta)
}

// Chunks returns all indexed chunks in arbitrary order.
func (ix *Index) Chunks() []Chunk {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Chunk, 0, len(ix.meta))
	for _, c := range ix.meta {
		out = append(out, c)
	}
	return out
}

// Search runs a BM25 query and returns the top k hits with snippets.
func (ix *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Hit
	for i, hit := range res.Hits {
		doc := ix.meta[hit.ID]
		out = append(out, Hit{
			DocID: hit.ID, URL: doc.URL, Title: doc.Title,
			Snippet: snippet(doc.Text),
			Score:   hit.Score, Rank: i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// Close releases index resources.
func (ix *Index) Close() error { return ix.idx.Close() }

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "…"
}
