// Package caselens embeds the caselens similarity engine in a Go program.
//
// A Client stores legal case documents with the embedding of their summary
// and returns the stored cases nearest to a free-text summary, most similar
// first.
//
//	client, _ := caselens.New(ctx,
//	    caselens.WithPostgres("postgres://localhost/caselens"),
//	    caselens.WithOpenAIEmbedder("http://encoder:8501/v1", "", "universal-sentence-encoder"),
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, []caselens.Document{{Title: "Doe v. Roe", Summary: "..."}})
//	matches, _ := client.FindSimilar(ctx, "breach of a lease agreement", 5)
//
// WithMemoryStore keeps documents in process memory, which suits tests and
// small corpora.
package caselens
