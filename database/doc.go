// Package database implements session.Store on top of bun and manages the
// connection pools sessions run on: configuration, health checks, migrations
// of registered models, query logging and driver error classification.
package database
