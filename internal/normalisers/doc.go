// Package normalisers provides the content parsers used by the sync
// pipeline. Each parser turns raw repository file content into the
// structured form the core services store and index.
package normalisers
