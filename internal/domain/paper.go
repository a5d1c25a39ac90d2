package domain

// Paper normalizes a point payload to the canonical paper record. Older
// collections store the record nested under payload["paper"], newer ones
// store it flat; every consumer goes through this adapter instead of probing
// both shapes.
func Paper(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	if nested, ok := payload["paper"].(map[string]any); ok {
		return nested
	}
	return payload
}

// PaperTitle returns the paper title, or "" when absent.
func PaperTitle(paper map[string]any) string {
	s, _ := paper["title"].(string)
	return s
}

// PaperAbstract returns the paper abstract, or "" when absent.
func PaperAbstract(paper map[string]any) string {
	s, _ := paper["abstract"].(string)
	return s
}

// PaperMeshTerms returns the MeSH subject terms attached to the paper.
// The store encodes them as a list of {"term": "..."} objects.
func PaperMeshTerms(paper map[string]any) []string {
	raw, ok := paper["mesh_terms"].([]any)
	if !ok {
		return nil
	}
	terms := make([]string, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if term, ok := m["term"].(string); ok && term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}
