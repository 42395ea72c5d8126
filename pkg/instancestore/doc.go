/*
Package instancestore provides BoltDB-backed persistence for the
Instance Manager's authoritative record set: one bucket of Instance
records keyed by instance id, plus a single version counter record
bumped on every successful write.

It does not implement the optimistic-concurrency check itself (that
lives in pkg/instancemanager, which calls Store.PutInstance only
after confirming the caller's expected version still matches);
Store is the dumb persistence layer underneath it, the same split the
Instance Manager's own BoltDB is meant to provide per spec.md's
"Persisted state layout" section.
*/
package instancestore
