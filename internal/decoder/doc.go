// Package decoder turns RTD record batches into per-instrument state.
//
// Each family (quotes, book, broker ranking) has its own Decoder. A decoder
// owns the wire protocol of its family in both directions: it builds the
// subscription command and parses the records the terminal sends back.
// Decoded values are published into lock-free state tables that the writers
// read concurrently.
//
// Decoding never blocks and performs no I/O. A bad record produces a
// *DecodeError in the Result and the rest of the batch is still applied.
package decoder
