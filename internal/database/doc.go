// Package database provides PostgreSQL connection pool setup for the event journal.
package database
