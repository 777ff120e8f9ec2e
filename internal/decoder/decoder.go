package decoder

import (
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/model"
)

// Decoder decodes the record batches of one family.
type Decoder interface {
	Family() model.Family

	// Framing returns the frame layout used by the reassembler.
	Framing() frame.Spec

	// Subscription returns the command written right after connecting.
	Subscription() string

	// Decode applies every record of a batch. receivedAt is the local time
	// the bytes were read.
	Decode(batch string, receivedAt time.Time) Result
}

// Result summarizes one decoded batch.
type Result struct {
	Applied int // Records that changed state
	Skipped int // Valid records ignored (noise, empty books)
	Errors  []error

	// Exchange timestamps seen while the skew was unknown (quotes only).
	Candidates []clock.Candidate
}

func (r *Result) fail(err error) {
	r.Errors = append(r.Errors, err)
}
