// Package loader wires one record family end to end: the connection
// supervisor feeds raw reads to a frame reassembler, complete batches go to
// the family decoder, and a writer flushes the decoded state.
//
// The quotes loader also calibrates the shared clock skew from the exchange
// timestamps found in its records.
package loader
