// Package acquire runs the ordered acquisition chain: given a canonical
// lockset.Set and a Resolver mapping names to lock backends, Resolve acquires
// every lock strictly in set order, one at a time, and hands back a Bundle
// owning all guards. Acquisition is sequential on purpose; acquiring in
// parallel would reintroduce orderings that the canonical sort exists to
// prevent. The first failed step unwinds every guard acquired before it, so a
// caller either holds the whole set or nothing.
package acquire
