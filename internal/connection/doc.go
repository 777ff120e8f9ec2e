// Package connection implements the feed connection supervisor.
//
// Each loader owns one Supervisor, which keeps a single TCP connection to
// the RTD terminal:
//   - Dials, writes the family subscription and streams raw reads
//   - Reconnects at a fixed interval after the terminal closes the socket
//   - Gives up with one fatal error after MaxReconnectAttempts
//   - Treats refused dials as closes and every other socket error as fatal
//
// The supervisor runs as a single goroutine, so there is never more than
// one dial in flight and the handler is never called concurrently.
package connection
