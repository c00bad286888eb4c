// Package searchgate provides an in-process Go client for the upstream search
// service behind the searchgate gateway, with the same request validation,
// per-attempt timeout, bounded retries and failure classification.
//
//	client, _ := searchgate.New(
//	    searchgate.WithUpstream("https://search.example.com/solr/core", token),
//	    searchgate.WithRetries(2),
//	)
//	res, err := client.Search(ctx, searchgate.SearchRequest{Query: "brain"})
//	if errors.Is(err, searchgate.ErrRateLimit) {
//	    // back off
//	}
package searchgate
