package decoder

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
)

// Broker ranking record fields: asset;broker;column;kind;value.
const (
	brokerAsset  = 0
	brokerID     = 1
	brokerKind   = 3
	brokerValue  = 4
	brokerFields = 5

	// Ranking column requested from the terminal.
	brokerColumn = 7

	kindVolume = "Qtd"
	kindVWAP   = "Prc"
)

// Broker decodes "RNK!" frames.
type Broker struct {
	registry *instrument.Registry
	table    *BrokerTable
	logger   *slog.Logger
}

// NewBroker creates a broker ranking decoder.
func NewBroker(reg *instrument.Registry, table *BrokerTable, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		registry: reg,
		table:    table,
		logger:   logger.With("family", model.FamilyBroker),
	}
}

func (d *Broker) Family() model.Family { return model.FamilyBroker }

func (d *Broker) Framing() frame.Spec { return frame.Broker }

// Subscription requests volume and average price for every
// (instrument, broker) pair.
func (d *Broker) Subscription() string {
	var b strings.Builder
	col := strconv.Itoa(brokerColumn)
	for _, inst := range d.registry.Instruments() {
		for _, id := range d.registry.Brokers() {
			for _, kind := range []string{kindVolume, kindVWAP} {
				b.WriteString("RNK$S|")
				b.WriteString(inst.FeedCode())
				b.WriteString("|")
				b.WriteString(strconv.Itoa(id))
				b.WriteString("|")
				b.WriteString(col)
				b.WriteString("|")
				b.WriteString(kind)
				b.WriteString("#")
			}
		}
	}
	return b.String()
}

func (d *Broker) Decode(batch string, receivedAt time.Time) Result {
	var res Result
	for _, rec := range frame.Broker.Records(batch) {
		d.apply(rec, receivedAt, &res)
	}
	return res
}

func (d *Broker) apply(rec string, receivedAt time.Time, res *Result) {
	cols := strings.Split(rec, ";")
	if len(cols) != brokerFields {
		res.fail(newDecodeError(model.FamilyBroker, rec, ErrMalformedRecord,
			"%d fields, want %d", len(cols), brokerFields))
		return
	}

	kind := strings.TrimSpace(cols[brokerKind])
	if kind != kindVolume && kind != kindVWAP {
		res.fail(newDecodeError(model.FamilyBroker, rec, ErrMalformedRecord, "kind %q", kind))
		return
	}

	feed := strings.TrimSpace(cols[brokerAsset])
	inst, ok := d.registry.Resolve(feed)
	if !ok {
		res.fail(newDecodeError(model.FamilyBroker, rec, ErrUnknownInstrument, "%s", feed))
		return
	}

	id, err := strconv.Atoi(strings.TrimSpace(cols[brokerID]))
	if err != nil {
		res.fail(newDecodeError(model.FamilyBroker, rec, ErrMalformedRecord, "broker id %q", cols[brokerID]))
		return
	}
	key := model.BrokerKey{Code: inst.Code, BrokerID: id}

	cur, ok := d.table.Load(key)
	if !ok {
		res.fail(newDecodeError(model.FamilyBroker, rec, ErrUnknownBroker, "%d", id))
		return
	}

	switch kind {
	case kindVolume:
		cur.Volume = ParseInt(cols[brokerValue])
	case kindVWAP:
		cur.VWAP = ParseDecimal(cols[brokerValue])
	}
	cur.UpdatedAt = receivedAt
	if cur.Volume != 0 || cur.VWAP != 0 {
		cur.Active = true
	}

	d.table.Store(key, cur)
	res.Applied++
}
