package model

import "time"

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// Instrument is a tradable asset as resolved by the owning session.
type Instrument struct {
	Code       string // Code records are attributed to (e.g., "WINZ24")
	ReplayCode string // Optional feed-side code subscribed instead of Code
}

// FeedCode returns the identifier used on the wire for this instrument.
func (i Instrument) FeedCode() string {
	if i.ReplayCode != "" {
		return i.ReplayCode
	}
	return i.Code
}

// Family identifies one of the three RTD record families.
type Family string

const (
	FamilyQuotes Family = "quotes"
	FamilyBook   Family = "book"
	FamilyBroker Family = "broker"
)

// Families returns every family in a stable order.
func Families() []Family {
	return []Family{FamilyQuotes, FamilyBook, FamilyBroker}
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// MarketState is the normalized trading phase of an instrument.
type MarketState string

const (
	MarketStateNone             MarketState = ""
	MarketStatePremarket        MarketState = "PREMARKET"
	MarketStateAuction          MarketState = "AUCTION"
	MarketStateAuctionExtension MarketState = "AUCTION_EXTENSION"
	MarketStateTrading          MarketState = "TRADING"
	MarketStateFrozen           MarketState = "FROZEN"
	MarketStateClosed           MarketState = "CLOSED"
	MarketStateUnknown          MarketState = "UNKNOWN"
)

// QuoteState is the latest decoded quote snapshot of one instrument.
type QuoteState struct {
	Open float64
	High float64
	Low  float64
	Last float64
	VWAP float64

	Trades int64 // Number of trades in the session
	Volume int64 // Financial volume

	AggressionQuantityBuy  int64
	AggressionQuantitySell int64
	AggressionVolumeBuy    int64
	AggressionVolumeSell   int64

	TheoreticalLevel      float64
	TheoreticalVolumeBuy  int64
	TheoreticalVolumeSell int64

	State     MarketState
	UpdatedAt time.Time // Local capture time of the record
	Active    bool      // True once any valid record has been applied
}

// SameValues reports whether two snapshots carry identical persisted fields.
// UpdatedAt and Active are bookkeeping and do not take part.
func (q QuoteState) SameValues(o QuoteState) bool {
	return q.Open == o.Open &&
		q.High == o.High &&
		q.Low == o.Low &&
		q.Last == o.Last &&
		q.VWAP == o.VWAP &&
		q.Trades == o.Trades &&
		q.Volume == o.Volume &&
		q.AggressionQuantityBuy == o.AggressionQuantityBuy &&
		q.AggressionQuantitySell == o.AggressionQuantitySell &&
		q.AggressionVolumeBuy == o.AggressionVolumeBuy &&
		q.AggressionVolumeSell == o.AggressionVolumeSell &&
		q.TheoreticalLevel == o.TheoreticalLevel &&
		q.TheoreticalVolumeBuy == o.TheoreticalVolumeBuy &&
		q.TheoreticalVolumeSell == o.TheoreticalVolumeSell &&
		q.State == o.State
}

// -----------------------------------------------------------------------------
// Book
// -----------------------------------------------------------------------------

// BookLevel is one depth line of an order book. JSON tags match the
// persisted JSONB layout.
type BookLevel struct {
	BuyOffers  int64   `json:"buyOffers"`
	BuyVolume  int64   `json:"buyVolume"`
	BuyLevel   float64 `json:"buyLevel"`
	SellOffers int64   `json:"sellOffers"`
	SellVolume int64   `json:"sellVolume"`
	SellLevel  float64 `json:"sellLevel"`
}

// BookState is a full depth snapshot. Levels are replaced, never merged.
type BookState struct {
	Levels    []BookLevel
	UpdatedAt time.Time
	Active    bool
}

// BooksEqual compares two level lists position by position.
func BooksEqual(a, b []BookLevel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Broker ranking
// -----------------------------------------------------------------------------

// BrokerKey addresses one broker balance of one instrument.
type BrokerKey struct {
	Code     string // Instrument.Code
	BrokerID int
}

// BrokerBalance is the aggressed net position of a broker in an instrument.
type BrokerBalance struct {
	Volume    int64
	VWAP      float64
	UpdatedAt time.Time
	Active    bool // Sticky: never reverts once set
}
