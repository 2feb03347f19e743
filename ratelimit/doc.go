// Package ratelimit admits or denies events per key against a limit per window,
// with the window state held in Redis so every instance shares it.
//
// SlidingWindow keeps one sorted-set entry per admitted event and is exact: at
// most limit events are admitted in any window-long interval. FixedWindow
// keeps a counter per calendar-aligned slot; it is cheaper but can admit up to
// twice the limit across a slot boundary.
//
// A denial is a false return, not an error. Errors mean the store could not be
// consulted, and callers decide whether to fail open or closed.
package ratelimit
