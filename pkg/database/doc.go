// Package database manages PostgreSQL connections for the access engine:
// a primary/replica connection manager with round-robin replica selection
// for read-only resolution queries, and a versioned migration runner used
// by the daemon at startup.
package database
