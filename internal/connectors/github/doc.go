// Package github connects the knowledge server to the GitHub repository
// that holds the markdown corpus.
//
// It covers three jobs:
//
//   - Fetcher reads file content at a commit through the Contents API and
//     classifies failures as terminal or retryable for the sync service.
//   - VerifySignature and ParsePush turn an incoming push webhook into
//     [domain.SyncParams].
//   - Client.CompareCommits and Client.ListMarkdown build the same params
//     for a manual sync from the CLI.
//
// # Rate Limiting
//
// Requests go through a two-stage limiter. A token bucket keeps the
// steady rate near 1.2 requests per second, and the X-RateLimit headers
// of each response pause the client until the reset time once fewer than
// MinBuffer requests remain.
//
// # Authentication
//
// A personal access token or installation token is sent as a bearer
// token through an oauth2 static token source. An empty token makes
// unauthenticated requests, which only works for public repositories.
package github
