package decoder

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
)

// DefaultBookDepth is the number of depth lines subscribed per instrument.
const DefaultBookDepth = 20

// Fields per depth line, in wire order.
const (
	bookBuyOffers = iota
	bookBuyVolume
	bookBuyLevel
	bookSellLevel
	bookSellVolume
	bookSellOffers
	bookColumns
)

// bookSubFields is the ";" shape of every non-empty book field. The value
// is the last one.
const bookSubFields = 4

// Book decodes "LVL2!" frames.
type Book struct {
	registry *instrument.Registry
	table    *BookTable
	depth    int
	logger   *slog.Logger
}

// NewBook creates a book decoder. depth <= 0 selects DefaultBookDepth.
func NewBook(reg *instrument.Registry, table *BookTable, depth int, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	if depth <= 0 {
		depth = DefaultBookDepth
	}
	return &Book{
		registry: reg,
		table:    table,
		depth:    depth,
		logger:   logger.With("family", model.FamilyBook),
	}
}

func (d *Book) Family() model.Family { return model.FamilyBook }

func (d *Book) Framing() frame.Spec { return frame.Book }

// Depth returns the number of lines per instrument.
func (d *Book) Depth() int { return d.depth }

// Subscription returns one "LVL2$S|1|<code>|<line>|<column>#" command per
// cell of the depth grid.
func (d *Book) Subscription() string {
	var b strings.Builder
	for _, inst := range d.registry.Instruments() {
		for line := 0; line < d.depth; line++ {
			for col := 0; col < bookColumns; col++ {
				fmt.Fprintf(&b, "LVL2$S|1|%s|%d|%d#", inst.FeedCode(), line, col)
			}
		}
	}
	return b.String()
}

func (d *Book) Decode(batch string, receivedAt time.Time) Result {
	var res Result
	for _, rec := range frame.Book.Records(batch) {
		d.apply(rec, receivedAt, &res)
	}
	return res
}

func (d *Book) apply(rec string, receivedAt time.Time, res *Result) {
	fields := strings.Split(rec, "|")

	feed := strings.TrimSpace(fields[0])
	inst, ok := d.registry.Resolve(feed)
	if !ok {
		res.fail(newDecodeError(model.FamilyBook, rec, ErrUnknownInstrument, "%s", feed))
		return
	}

	levels := make([]model.BookLevel, 0, d.depth)
	for i := 1; i+bookColumns <= len(fields) && (i-1)/bookColumns < d.depth; i += bookColumns {
		var values [bookColumns]string
		for c := 0; c < bookColumns; c++ {
			v, err := bookValue(fields[i+c])
			if err != nil {
				res.fail(newDecodeError(model.FamilyBook, rec, ErrMalformedRecord,
					"line %d column %d: %v", (i-1)/bookColumns, c, err))
				return
			}
			values[c] = v
		}

		level := model.BookLevel{
			BuyOffers:  ParseInt(values[bookBuyOffers]),
			BuyVolume:  ParseInt(values[bookBuyVolume]),
			BuyLevel:   ParseDecimal(values[bookBuyLevel]),
			SellLevel:  ParseDecimal(values[bookSellLevel]),
			SellVolume: ParseInt(values[bookSellVolume]),
			SellOffers: ParseInt(values[bookSellOffers]),
		}
		if level.BuyOffers > 0 || level.SellOffers > 0 {
			levels = append(levels, level)
		}
	}

	if len(levels) == 0 {
		res.Skipped++
		return
	}

	d.table.Store(inst.Code, model.BookState{
		Levels:    levels,
		UpdatedAt: receivedAt,
		Active:    true,
	})
	res.Applied++
}

// bookValue extracts the value of a "a;b;c;value" field. Blank fields are
// zero.
func bookValue(field string) (string, error) {
	if strings.TrimSpace(field) == "" {
		return "", nil
	}
	parts := strings.Split(field, ";")
	if len(parts) != bookSubFields {
		return "", fmt.Errorf("%d sub-fields, want %d", len(parts), bookSubFields)
	}
	return parts[bookSubFields-1], nil
}
