// Package frame reassembles RTD frames from an unreliable byte stream.
//
// The terminal writes frames as "<prefix><records><terminator>", and a single
// TCP read may hold several coalesced frames or only part of one. The
// Reassembler keeps the trailing partial frame between reads and hands out
// record batches that are safe to decode.
package frame

import "strings"

// Spec describes the framing of one record family.
type Spec struct {
	Prefix     string // Frame prefix, e.g. "COT!"
	Terminator string // Frame terminator, "#" for every family
	Separator  string // Record separator inside a batch

	// SplitLead + SplitPrefix is the marker searched (last occurrence) when a
	// read does not end on a terminator. SplitLead is dropped, SplitPrefix is
	// kept at the start of the new remainder.
	SplitLead   string
	SplitPrefix string
}

// Family framings.
var (
	Quotes = Spec{Prefix: "COT!", Terminator: "#", Separator: "#", SplitLead: "#", SplitPrefix: "COT!"}
	Book   = Spec{Prefix: "LVL2!", Terminator: "#", Separator: "#", SplitLead: "#", SplitPrefix: "LVL2!"}
	Broker = Spec{Prefix: "RNK!", Terminator: "#", Separator: "|", SplitLead: "|"}
)

// Reassembler turns chunks into complete record batches. It is owned by a
// single read path and is not safe for concurrent use.
type Reassembler struct {
	spec      Spec
	remainder string
}

// NewReassembler creates a reassembler with an empty remainder.
func NewReassembler(spec Spec) *Reassembler {
	return &Reassembler{spec: spec}
}

// Spec returns the framing this reassembler was built with.
func (r *Reassembler) Spec() Spec {
	return r.spec
}

// Push appends a chunk and returns the batch that became decodable, if any.
// When no frame boundary can be located, everything is retained and ok is
// false; nothing is ever discarded.
func (r *Reassembler) Push(chunk []byte) (batch string, ok bool) {
	if len(chunk) == 0 {
		return "", false
	}

	data := r.remainder + string(chunk)
	r.remainder = ""

	if !strings.HasSuffix(data, r.spec.Terminator) {
		pos := strings.LastIndex(data, r.spec.SplitLead+r.spec.SplitPrefix)
		if pos < 0 {
			r.remainder = data
			return "", false
		}
		r.remainder = data[pos+len(r.spec.SplitLead):]
		batch = strings.TrimPrefix(data[:pos], r.spec.Prefix)
	} else {
		batch = strings.TrimPrefix(data, r.spec.Prefix)
		batch = strings.TrimSuffix(batch, r.spec.Terminator)
	}

	if batch == "" {
		return "", false
	}
	return batch, true
}

// Pending returns the retained partial frame.
func (r *Reassembler) Pending() string {
	return r.remainder
}

// Reset drops the retained partial frame. Called on every (re)connect.
func (r *Reassembler) Reset() {
	r.remainder = ""
}

// Records splits a batch into records, folding the embedded
// "<terminator><prefix>" boundaries of coalesced frames into separators.
// Empty records are dropped.
func (s Spec) Records(batch string) []string {
	batch = strings.ReplaceAll(batch, s.Terminator+s.Prefix, s.Separator)
	parts := strings.Split(batch, s.Separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
