// Package lockset builds canonically ordered sets of named read/write lock
// requests. Two callers that request overlapping names always end up with the
// shared names in the same relative order, regardless of how they listed them,
// which is what rules out lock-order deadlocks between them. A name may appear
// at most once per set, in either mode; requesting it twice (even once for
// read and once for write) is an error rather than a coalesced acquisition.
package lockset
