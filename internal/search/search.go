package search

// Result is a single search hit returned to the caller.
type Result struct {
	GuideID string `json:"guideId"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	State   string `json:"state"`
	Author  string `json:"author"`
}

// Query describes a search request over guides.
type Query struct {
	Text        string
	FilterState string // empty = all workflow states
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push guides into a search index.
type Indexer interface {
	IndexGuide(g GuideRecord) error
	DeleteGuide(id string) error
}

/// GuideRecord is the data we index for a guide: its latest edition's
// content plus listing metadata.
type GuideRecord struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Body        string `json:"body"`
	State       string `json:"state"`
	Author      string `json:"author"`
}
