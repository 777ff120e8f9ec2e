package decoder

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
)

// Quote record field positions.
const (
	quoteAsset                   = 0
	quoteLast                    = 1
	quoteOpen                    = 7
	quoteHigh                    = 8
	quoteLow                     = 9
	quoteTime                    = 12
	quoteTrades                  = 14
	quoteVWAP                    = 15
	quoteVolume                  = 16
	quoteState                   = 18
	quoteDate                    = 25
	quoteTheoreticalLevel        = 37
	quoteTheoreticalVolume       = 38
	quoteAggressionVolumeBuy     = 46
	quoteAggressionVolumeSell    = 49
	quoteTheoreticalVolumeDiff   = 61
	quoteTheoreticalNetDirection = 62
	quoteAggressionQuantityBuy   = 63
	quoteAggressionQuantitySell  = 66

	// QuoteMinFields is the minimum field count of a quote record.
	QuoteMinFields = 90
)

const exchangeLayout = "2/1/2006 15:04:05"

// Quotes decodes "COT!" frames.
type Quotes struct {
	registry *instrument.Registry
	table    *QuoteTable
	skew     *clock.Skew
	refDate  time.Time
	logger   *slog.Logger
}

// NewQuotes creates a quotes decoder. refDate is the session's reference
// day; its location is the exchange time zone used to read timestamps.
func NewQuotes(reg *instrument.Registry, table *QuoteTable, skew *clock.Skew, refDate time.Time, logger *slog.Logger) *Quotes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quotes{
		registry: reg,
		table:    table,
		skew:     skew,
		refDate:  refDate,
		logger:   logger.With("family", model.FamilyQuotes),
	}
}

func (d *Quotes) Family() model.Family { return model.FamilyQuotes }

func (d *Quotes) Framing() frame.Spec { return frame.Quotes }

// Subscription returns "COT$S|<code>#" for every instrument.
func (d *Quotes) Subscription() string {
	var b strings.Builder
	for _, inst := range d.registry.Instruments() {
		b.WriteString("COT$S|")
		b.WriteString(inst.FeedCode())
		b.WriteString("#")
	}
	return b.String()
}

func (d *Quotes) Decode(batch string, receivedAt time.Time) Result {
	var res Result
	for _, rec := range frame.Quotes.Records(batch) {
		d.apply(rec, receivedAt, &res)
	}
	return res
}

func (d *Quotes) apply(rec string, receivedAt time.Time, res *Result) {
	cols := strings.Split(rec, "|")
	if len(cols) < QuoteMinFields {
		res.fail(newDecodeError(model.FamilyQuotes, rec, ErrMalformedRecord,
			"%d fields, want at least %d", len(cols), QuoteMinFields))
		return
	}

	feed := strings.TrimSpace(cols[quoteAsset])
	inst, ok := d.registry.Resolve(feed)
	if !ok {
		res.fail(newDecodeError(model.FamilyQuotes, rec, ErrUnknownInstrument, "%s", feed))
		return
	}

	exchangeTime, hasTime := parseExchangeTime(cols[quoteDate], cols[quoteTime], d.refDate.Location())
	state := d.marketState(inst.Code, cols[quoteState], hasTime)

	if hasTime && !d.skew.Known() {
		if !sameDay(exchangeTime, d.refDate) {
			res.fail(newDecodeError(model.FamilyQuotes, rec, ErrIncompatibleDate,
				"%s is not on %s", exchangeTime.Format(time.DateOnly), d.refDate.Format(time.DateOnly)))
			return
		}
		res.Candidates = append(res.Candidates, clock.Candidate{Code: inst.Code, At: exchangeTime})
	}

	vwap := ParseDecimal(cols[quoteVWAP])
	theoretical := ParseDecimal(cols[quoteTheoreticalLevel])
	if vwap == 0 && theoretical == 0 {
		res.Skipped++
		return
	}

	q := model.QuoteState{
		Open:                   ParseDecimal(cols[quoteOpen]),
		High:                   ParseDecimal(cols[quoteHigh]),
		Low:                    ParseDecimal(cols[quoteLow]),
		Last:                   ParseDecimal(cols[quoteLast]),
		VWAP:                   vwap,
		Trades:                 ParseInt(cols[quoteTrades]),
		Volume:                 ParseInt(cols[quoteVolume]),
		AggressionQuantityBuy:  ParseInt(cols[quoteAggressionQuantityBuy]),
		AggressionQuantitySell: ParseInt(cols[quoteAggressionQuantitySell]),
		AggressionVolumeBuy:    ParseInt(cols[quoteAggressionVolumeBuy]),
		AggressionVolumeSell:   ParseInt(cols[quoteAggressionVolumeSell]),
		TheoreticalLevel:       theoretical,
		State:                  state,
		UpdatedAt:              receivedAt,
		Active:                 true,
	}
	// Without a theoretical level both sides carry the raw volume.
	theoreticalVolume := ParseInt(cols[quoteTheoreticalVolume])
	q.TheoreticalVolumeBuy, q.TheoreticalVolumeSell = theoreticalVolume, theoreticalVolume
	if theoretical > 0 {
		q.TheoreticalVolumeBuy, q.TheoreticalVolumeSell = d.theoreticalVolumes(inst.Code,
			theoreticalVolume,
			ParseInt(cols[quoteTheoreticalVolumeDiff]),
			cols[quoteTheoreticalNetDirection])
	}

	d.table.Store(inst.Code, q)
	res.Applied++
}

func (d *Quotes) marketState(code, raw string, hasTime bool) model.MarketState {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.MarketStateNone
	}
	if !hasTime {
		return model.MarketStatePremarket
	}
	state, ok := NormalizeState(raw)
	if !ok {
		d.logger.Warn("unrecognized market state", "code", code, "raw", raw)
	}
	return state
}

// theoreticalVolumes splits the theoretical auction volume by side. The
// indicator names the side with the surplus: "V" sellers, "C" buyers.
func (d *Quotes) theoreticalVolumes(code string, volume, diff int64, indicator string) (buy, sell int64) {
	switch strings.ToUpper(strings.TrimSpace(indicator)) {
	case "V":
		return volume, volume + diff
	case "C":
		return volume + diff, volume
	case "":
		return volume, volume
	default:
		d.logger.Warn("unrecognized theoretical net direction", "code", code, "raw", indicator)
		return volume, volume
	}
}

// parseExchangeTime reads "dd/mm/yyyy" and "hh:mm:ss" in loc. Both parts
// are required.
func parseExchangeTime(date, clock string, loc *time.Location) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(exchangeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
