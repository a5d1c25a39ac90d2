package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Dense embeds the query and runs vector similarity search directly.
	Dense  Mode = "dense"
	Sparse Mode = "sparse"
	Hybrid Mode = "hybrid"
	// GraphRAG delegates retrieval, graph enrichment, and summarization to
	// the orchestration backend.
	GraphRAG Mode = "graphrag"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Dense || m == Sparse || m == Hybrid || m == GraphRAG
}

// UsesOrchestrator reports whether the mode is served by the orchestration
// backend when one is configured.
func (m Mode) UsesOrchestrator() bool {
	return m == Sparse || m == Hybrid || m == GraphRAG
}
