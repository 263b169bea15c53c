// Package domain defines the core business entities for the knowledge server.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A published knowledge entry held in the document store
//   - ContentType: The closed set of entry kinds and their path conventions
//   - VectorRecord: The index-side projection of a Document
//   - ChangeNotification: A document store mutation event
//   - SyncParams / SyncReport: Input and outcome of a sync run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
