package decoder

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rickgao/rtd-loader/internal/model"
)

var marketStates = map[string]model.MarketState{
	"LEILAO":                model.MarketStateAuction,
	"PRORROGACAO DE LEILAO": model.MarketStateAuctionExtension,
	"NORMAL":                model.MarketStateTrading,
	"SUSPENSO":              model.MarketStateFrozen,
	"FECHADO":               model.MarketStateClosed,
	"ENCERRADO":             model.MarketStateClosed,
}

// NormalizeState maps the terminal's state text to a MarketState. Case,
// accents and repeated blanks are ignored ("Prorrogação de  Leilão" matches).
// ok is false for unrecognized text.
func NormalizeState(raw string) (model.MarketState, bool) {
	state, ok := marketStates[foldText(raw)]
	if !ok {
		return model.MarketStateUnknown, false
	}
	return state, true
}

// foldText strips diacritics, collapses whitespace and upper-cases.
func foldText(s string) string {
	// Transformers are stateful; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}
