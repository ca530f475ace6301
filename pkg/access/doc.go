// Package access implements permission resolution and access-consistency
// maintenance for the platform's licensed modules.
//
// Resolution computes a user's effective permission set as the union of
// directly assigned profiles and profiles inherited through group
// membership, with an admin short-circuit that grants the module's full
// permission universe. Resolution is read-only and side-effect free.
//
// The consistency engine reacts to severed access paths (a group losing a
// project, a user losing a direct assignment) by recomputing reachability
// and revoking project connections that no remaining path justifies.
// Revocations are idempotent and failures are queued for retry rather than
// dropped.
//
// Persistence is raw SQL over database/sql; the Store type satisfies the
// repository contracts in this package.
package access
