// Package instrument resolves feed-side identifiers to the instruments a
// session subscribed to.
//
// The instrument set is supplied by the owning session and is immutable for
// the lifetime of a loader. Lookups are keyed by feed code (the replay code
// when present), so decoders never rely on positional lookup.
package instrument
