// Package relevar is a tenant-isolated hybrid retrieval engine. It indexes
// items (documents or invokable tool descriptions), serves five search modes
// over in-memory indexes with pluggable persistence, and re-ranks candidates
// with a ten-signal contextual relevance scorer.
//
// # Indexing and searching
//
//	eng, _ := relevar.New(cfg, relevar.WithLogger(logger))
//	defer eng.Close()
//
//	id, _ := eng.Index(ctx, &relevar.Item{
//	    Content:     "converts currency amounts using exchange rates",
//	    Tags:        []string{"finance"},
//	    Categories:  []string{"conversion"},
//	    TenantScope: "acme",
//	})
//	matches, _ := eng.Search(ctx, &relevar.SearchRequest{
//	    Query:       "convert currency",
//	    TenantScope: "acme",
//	    Mode:        relevar.ModeHybrid,
//	})
//
// # Contextual re-ranking
//
// Search returns matches ordered by retrieval relevance. Score re-ranks them
// for a specific actor and task, blending usage history, relationships, and
// capability fit:
//
//	scored, _ := eng.Score(ctx, matches, relevar.ScoringContext{
//	    ActorID: "alice",
//	    Task:    relevar.TaskSpec{Complexity: relevar.ComplexityModerate},
//	})
//
// Recording usage and relationships feeds the history the scorer draws on:
//
//	_ = eng.RecordUsage(ctx, relevar.UsageEvent{ItemID: id, ActorID: "alice", Success: true})
//	_ = eng.RecordRelationship(ctx, id, other, relevar.KindComplementary)
//
// Embedding and query expansion run through an external provider when
// configured; outages degrade to a deterministic pseudo-embedding instead of
// failing requests, and degraded results are flagged as such.
package relevar
