// Package clock estimates the offset between the local clock and the
// exchange clock reported by the quotes feed.
//
// The offset (skew) is published through a single-assignment Skew shared by
// every loader of a session. Rows written before the skew is known are
// provisional and get rewritten once when Ready fires.
package clock
