// Package file loads the server configuration from a TOML file, an
// optional .env file and environment overrides for secrets.
//
// Precedence, lowest first: built-in defaults, config.toml, environment.
package file
