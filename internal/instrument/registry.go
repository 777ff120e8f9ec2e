package instrument

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rickgao/rtd-loader/internal/model"
)

// Errors
var (
	ErrEmpty     = errors.New("empty instrument list is not allowed")
	ErrDuplicate = errors.New("duplicate instrument")
)

// Registry is a read-only lookup table of subscribed instruments.
type Registry struct {
	ordered []model.Instrument
	byFeed  map[string]model.Instrument
	byCode  map[string]model.Instrument
	brokers []int
	broker  map[int]struct{}
}

// NewRegistry builds a registry. Codes are normalized to upper case.
// Broker ids apply to every instrument; they are only used by the broker
// ranking family and may be empty otherwise.
func NewRegistry(instruments []model.Instrument, brokers []int) (*Registry, error) {
	if len(instruments) == 0 {
		return nil, ErrEmpty
	}

	r := &Registry{
		ordered: make([]model.Instrument, 0, len(instruments)),
		byFeed:  make(map[string]model.Instrument, len(instruments)),
		byCode:  make(map[string]model.Instrument, len(instruments)),
		broker:  make(map[int]struct{}, len(brokers)),
	}

	for _, inst := range instruments {
		inst = model.Instrument{
			Code:       normalize(inst.Code),
			ReplayCode: normalize(inst.ReplayCode),
		}
		if inst.Code == "" {
			return nil, errors.New("instrument code is required")
		}
		feed := inst.FeedCode()
		if _, ok := r.byFeed[feed]; ok {
			return nil, fmt.Errorf("%w: feed code %s", ErrDuplicate, feed)
		}
		if _, ok := r.byCode[inst.Code]; ok {
			return nil, fmt.Errorf("%w: code %s", ErrDuplicate, inst.Code)
		}
		r.byFeed[feed] = inst
		r.byCode[inst.Code] = inst
		r.ordered = append(r.ordered, inst)
	}

	for _, id := range brokers {
		if _, ok := r.broker[id]; ok {
			continue
		}
		r.broker[id] = struct{}{}
		r.brokers = append(r.brokers, id)
	}
	sort.Ints(r.brokers)

	return r, nil
}

// Resolve maps a feed-side identifier to its instrument.
func (r *Registry) Resolve(feedCode string) (model.Instrument, bool) {
	inst, ok := r.byFeed[normalize(feedCode)]
	return inst, ok
}

// Instruments returns the instruments in subscription order.
func (r *Registry) Instruments() []model.Instrument {
	out := make([]model.Instrument, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Brokers returns the tracked broker ids in ascending order.
func (r *Registry) Brokers() []int {
	out := make([]int, len(r.brokers))
	copy(out, r.brokers)
	return out
}

// HasBroker reports whether a broker id is tracked.
func (r *Registry) HasBroker(id int) bool {
	_, ok := r.broker[id]
	return ok
}

// Len returns the number of instruments.
func (r *Registry) Len() int {
	return len(r.ordered)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
