// Package bioscope provides a Go client for the bioscope search gateway.
//
// The low-level API mirrors the HTTP surface:
//
//	c := bioscope.New("http://localhost:8080", bioscope.WithAPIKey("secret"))
//	resp, _ := c.Search(ctx, bioscope.SearchRequest{Query: "CRISPR delivery"})
//
// Streaming searches return an event iterator:
//
//	s, _ := c.StreamSearch(ctx, bioscope.SearchRequest{Query: "CRISPR delivery"})
//	defer s.Close()
//	for {
//	    ev, err := s.Next()
//	    if err != nil {
//	        break
//	    }
//	    // handle ev
//	}
//
// Conversation accumulates stream events into a chat transcript the way the
// dashboard UI does, and TraceView inspects the retrieval trace attached to
// a completed search.
package bioscope
