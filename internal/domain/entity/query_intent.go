package entity

type QueryRoute string

const (
	RouteRAG    QueryRoute = "rag"
	RouteSQL    QueryRoute = "sql"
	RouteHybrid QueryRoute = "hybrid"
)

// QueryIntent is the per-question classification result. It is recomputed
// for every question and never persisted.
type QueryIntent struct {
	Route           QueryRoute
	Confidence      float64
	MatchedEntities []string
}
