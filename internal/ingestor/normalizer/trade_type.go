package normalizer

import (
	"strings"

	"insidertrack/internal/entity"
)

// tradeTypes is the single vocabulary table shared by every source.
var tradeTypes = map[string]entity.TradeType{
	"p":                   entity.TradeTypeBuy,
	"buy":                 entity.TradeTypeBuy,
	"bought":              entity.TradeTypeBuy,
	"purchase":            entity.TradeTypeBuy,
	"open market buy":     entity.TradeTypeBuy,
	"acquisition":         entity.TradeTypeBuy,
	"s":                   entity.TradeTypeSell,
	"sell":                entity.TradeTypeSell,
	"sold":                entity.TradeTypeSell,
	"sale":                entity.TradeTypeSell,
	"open market sale":    entity.TradeTypeSell,
	"disposition":         entity.TradeTypeSell,
	"m":                   entity.TradeTypeOptionExercise,
	"x":                   entity.TradeTypeOptionExercise,
	"exercise":            entity.TradeTypeOptionExercise,
	"option exercise":     entity.TradeTypeOptionExercise,
	"optex":               entity.TradeTypeOptionExercise,
	"g":                   entity.TradeTypeGift,
	"gift":                entity.TradeTypeGift,
	"j":                   entity.TradeTypeTransfer,
	"w":                   entity.TradeTypeTransfer,
	"transfer":            entity.TradeTypeTransfer,
	"will or inheritance": entity.TradeTypeTransfer,
}

// ParseTradeType maps a source vocabulary term to a TradeType. Codes such
// as OpenInsider's "S - Sale+OE" are reduced to their leading term.
func ParseTradeType(s string) entity.TradeType {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if t, ok := tradeTypes[key]; ok {
		return t
	}

	for _, sep := range []string{" - ", "+", "(", "/"} {
		if i := strings.Index(key, sep); i > 0 {
			head := strings.TrimSpace(key[:i])
			if t, ok := tradeTypes[head]; ok {
				return t
			}
		}
	}

	if fields := strings.Fields(key); len(fields) > 0 {
		if t, ok := tradeTypes[fields[0]]; ok {
			return t
		}
	}
	return entity.TradeTypeOther
}
