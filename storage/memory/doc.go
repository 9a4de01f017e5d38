// Package memory provides an in-memory implementation of the credential
// store contracts.
//
// All operations on a Store are serialized under a single mutex, which
// gives the redemption, rotation, and logout paths the same
// no-partial-visibility guarantee the Redis backend gets from MULTI/EXEC.
// It is suitable for development, testing, and single-instance deployments
// where persistence is not required; production deployments should use
// storage/redis.
package memory
