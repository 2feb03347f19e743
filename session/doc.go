// Package session keeps login sessions in Redis with a per-user reverse index.
//
// Each session is stored under {prefix}:session:{id} and its id is added to
// the set {prefix}:user_sessions:{userID}. The two writes are sequential and
// not transactional: a failure between them can leave an index entry whose
// session is gone. Reads tolerate such entries, and Prune removes them on
// demand. No mutation repairs the index inline.
package session
