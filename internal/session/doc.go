// Package session owns the loaders of one trading session.
//
// A session builds one loader per enabled record family over a shared
// instrument registry and a fresh clock skew, fans their events in, and
// tears everything down when the context ends, the shutdown time is
// reached, or a loader gives up on its connection. Teardown stops the
// loaders concurrently and purges the provisional rows that were never
// finalized.
package session
