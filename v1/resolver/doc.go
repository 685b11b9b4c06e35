// Package resolver provides lock backends for the acquisition chain. Each
// backend maps a lock name and access mode to a concrete read/write lock:
// in-process semaphores (Memory), Redis keys with token-checked release
// (Redis), Postgres advisory locks (Postgres), or flock-ed files (File). All
// backends block with context awareness and implement acquire.Resolver, so a
// caller picks one per environment and the chain stays backend-agnostic.
package resolver
