// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - SourceFetcher: Reads file content from the source repository at a commit
//   - FrontmatterParser: Splits markdown into metadata and body
//   - DocumentStore: Key-addressed document persistence
//   - ChangeQueue / Message: Document store change notifications
//   - EmbeddingService: Text to vector oracle
//   - VectorIndex: Vector storage and filtered similarity search
//   - Reranker: Query/context relevance oracle
//   - RerankCache: TTL cache of rerank results
//   - DeliveryLog: Webhook delivery dedupe window
//
// All blocking operations take a context.Context.
package driven
