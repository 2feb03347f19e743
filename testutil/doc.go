// Package testutil extends the component lifecycle with test-only hooks so
// store-backed primitives can be exercised against in-memory doubles.
//
//	func TestLimiter(t *testing.T) {
//	    store := redistest.NewComponent()
//	    testutil.T(t).Setup(store)
//	    // store is stopped when the test ends
//	}
//
// Reset, Snapshot and Restore let a test isolate cases that share one
// started component.
package testutil
