// Package storage defines the credential store contracts for authorization
// codes, refresh tokens, and the revocation denylist.
//
// The store is the single source of truth for whether a code or token is
// still alive. Signed expiry claims embedded in tokens are advisory; the
// redemption and refresh paths trust store presence only.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/redis: Redis-backed distributed storage for production
package storage
