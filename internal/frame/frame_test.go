package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(r *Reassembler, chunks ...string) []string {
	var records []string
	for _, c := range chunks {
		if batch, ok := r.Push([]byte(c)); ok {
			records = append(records, r.Spec().Records(batch)...)
		}
	}
	return records
}

func TestReassembler_CompleteFrame(t *testing.T) {
	r := NewReassembler(Quotes)

	batch, ok := r.Push([]byte("COT!PETR4|1|2#"))
	require.True(t, ok)
	assert.Equal(t, "PETR4|1|2", batch)
	assert.Empty(t, r.Pending())
}

func TestReassembler_CoalescedFrames(t *testing.T) {
	r := NewReassembler(Quotes)

	records := collect(r, "COT!A|1#COT!B|2#COT!C|3#")
	assert.Equal(t, []string{"A|1", "B|2", "C|3"}, records)
}

func TestReassembler_SplitKeepsTail(t *testing.T) {
	r := NewReassembler(Quotes)

	batch, ok := r.Push([]byte("COT!A|1#COT!B|"))
	require.True(t, ok)
	assert.Equal(t, "A|1", batch)
	assert.Equal(t, "COT!B|", r.Pending())

	batch, ok = r.Push([]byte("2#"))
	require.True(t, ok)
	assert.Equal(t, "B|2", batch)
	assert.Empty(t, r.Pending())
}

func TestReassembler_NoMarkerHoldsEverything(t *testing.T) {
	r := NewReassembler(Book)

	_, ok := r.Push([]byte("LVL2!PETR4|1;2;3;4"))
	assert.False(t, ok)
	assert.Equal(t, "LVL2!PETR4|1;2;3;4", r.Pending())

	_, ok = r.Push([]byte("|;;;5"))
	assert.False(t, ok)

	batch, ok := r.Push([]byte("#"))
	require.True(t, ok)
	assert.Equal(t, "PETR4|1;2;3;4|;;;5", batch)
}

func TestReassembler_EmptyChunk(t *testing.T) {
	r := NewReassembler(Quotes)
	_, _ = r.Push([]byte("COT!A|"))

	_, ok := r.Push(nil)
	assert.False(t, ok)
	assert.Equal(t, "COT!A|", r.Pending())
}

func TestReassembler_Reset(t *testing.T) {
	r := NewReassembler(Quotes)
	_, _ = r.Push([]byte("COT!A|1"))
	r.Reset()
	assert.Empty(t, r.Pending())

	records := collect(r, "COT!B|2#")
	assert.Equal(t, []string{"B|2"}, records)
}

func TestReassembler_BrokerSplitsOnRecordSeparator(t *testing.T) {
	r := NewReassembler(Broker)

	batch, ok := r.Push([]byte("RNK!PETR4;3;0;Qtd;150|PETR4;3;0;Prc;12,"))
	require.True(t, ok)
	assert.Equal(t, "PETR4;3;0;Qtd;150", batch)
	assert.Equal(t, "PETR4;3;0;Prc;12,", r.Pending())

	records := collect(r, "50#RNK!VALE3;8;0;Qtd;10#")
	assert.Equal(t, []string{"PETR4;3;0;Prc;12,50", "VALE3;8;0;Qtd;10"}, records)
}

// Every partition of the stream into two or three chunks must yield the
// records of the unsplit stream.
func TestReassembler_AnyPartition(t *testing.T) {
	streams := map[string]struct {
		spec   Spec
		stream string
	}{
		"quotes": {Quotes, "COT!A|1|x#COT!B|2|y#COT!C|3|z#"},
		"book":   {Book, "LVL2!A|;;;1|;;;2#LVL2!B|;;;3|;;;4#"},
		"broker": {Broker, "RNK!A;1;0;Qtd;5|A;1;0;Prc;1,5#RNK!B;2;0;Qtd;7#"},
	}

	for name, s := range streams {
		t.Run(name, func(t *testing.T) {
			want := collect(NewReassembler(s.spec), s.stream)
			require.NotEmpty(t, want)

			n := len(s.stream)
			for i := 1; i < n; i++ {
				got := collect(NewReassembler(s.spec), s.stream[:i], s.stream[i:])
				assert.Equal(t, want, got, "split at %d", i)

				for j := i + 1; j < n; j++ {
					got := collect(NewReassembler(s.spec), s.stream[:i], s.stream[i:j], s.stream[j:])
					assert.Equal(t, want, got, "split at %d,%d", i, j)
				}
			}
		})
	}
}
