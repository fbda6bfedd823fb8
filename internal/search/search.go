package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultGuideline  ResultType = "guideline"
	ResultInitiative ResultType = "initiative"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	CycleID string     `json:"cycleId"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterCycleID string
	Limit         int
	Offset        int
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

// Indexer can push entities into a search index.
type Indexer interface {
	IndexGuideline(g GuidelineRecord) error
	IndexInitiative(i InitiativeRecord) error
	DeleteGuideline(id string) error
	DeleteInitiative(id string) error
}

// GuidelineRecord is the data we index for a guideline.
type GuidelineRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CycleID      string `json:"cycleId"`
	Status       string `json:"status"`
	RelationType string `json:"relationType"`
}

// InitiativeRecord is the data we index for an initiative.
type InitiativeRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CycleID     string `json:"cycleId"`
	Status      string `json:"status"`
}
