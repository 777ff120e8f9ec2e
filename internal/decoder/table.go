package decoder

import (
	"sync/atomic"

	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
)

// Table is a fixed-key state table. Each entry is published atomically, so
// a reader always sees a whole value from one decoded record. Keys are set
// at construction and never change.
//
// Only the owning decoder stores; writers load.
type Table[K comparable, V any] struct {
	keys    []K
	entries map[K]*atomic.Pointer[V]
}

// NewTable creates a table with a zero value for every key.
func NewTable[K comparable, V any](keys []K) *Table[K, V] {
	t := &Table[K, V]{
		keys:    make([]K, 0, len(keys)),
		entries: make(map[K]*atomic.Pointer[V], len(keys)),
	}
	for _, k := range keys {
		if _, ok := t.entries[k]; ok {
			continue
		}
		p := &atomic.Pointer[V]{}
		p.Store(new(V))
		t.entries[k] = p
		t.keys = append(t.keys, k)
	}
	return t
}

// Load returns a copy of the value for key.
func (t *Table[K, V]) Load(key K) (V, bool) {
	p, ok := t.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return *p.Load(), true
}

// Store publishes a new value. Returns false for keys outside the table.
func (t *Table[K, V]) Store(key K, v V) bool {
	p, ok := t.entries[key]
	if !ok {
		return false
	}
	p.Store(&v)
	return true
}

// Keys returns the keys in construction order.
func (t *Table[K, V]) Keys() []K {
	return t.keys
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	return len(t.keys)
}

// Family tables.
type (
	QuoteTable  = Table[string, model.QuoteState]
	BookTable   = Table[string, model.BookState]
	BrokerTable = Table[model.BrokerKey, model.BrokerBalance]
)

// NewQuoteTable creates one entry per instrument code.
func NewQuoteTable(reg *instrument.Registry) *QuoteTable {
	return NewTable[string, model.QuoteState](codes(reg))
}

// NewBookTable creates one entry per instrument code.
func NewBookTable(reg *instrument.Registry) *BookTable {
	return NewTable[string, model.BookState](codes(reg))
}

// NewBrokerTable creates one entry per (instrument, broker) pair.
func NewBrokerTable(reg *instrument.Registry) *BrokerTable {
	var keys []model.BrokerKey
	for _, inst := range reg.Instruments() {
		for _, id := range reg.Brokers() {
			keys = append(keys, model.BrokerKey{Code: inst.Code, BrokerID: id})
		}
	}
	return NewTable[model.BrokerKey, model.BrokerBalance](keys)
}

func codes(reg *instrument.Registry) []string {
	insts := reg.Instruments()
	out := make([]string, len(insts))
	for i, inst := range insts {
		out[i] = inst.Code
	}
	return out
}
