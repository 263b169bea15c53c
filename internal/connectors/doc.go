// Package connectors holds the clients for the systems the knowledge
// corpus is read from. The github package is the only source today.
package connectors
