// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services never touch CGO or the network directly; every external
// system is reached through a driven port.
package services
