package parser

import (
	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/utils"
)

var marketBeatLayout = tableLayout{
	headers: map[column][]string{
		colTicker:    {"ticker", "symbol"},
		colCompany:   {"company"},
		colTrader:    {"insider", "insider name"},
		colTitle:     {"title", "position"},
		colTradeType: {"buy/sell", "transaction"},
		colShares:    {"shares", "number of shares"},
		colPrice:     {"price", "average price"},
		colValue:     {"value", "total transaction"},
		colTradeDate: {"date", "transaction date"},
	},
	required: []column{colCompany, colTrader, colTradeDate},
}

// MarketBeatParser reads the MarketBeat latest insider trades table.
type MarketBeatParser struct{}

func NewMarketBeatParser() *MarketBeatParser {
	return &MarketBeatParser{}
}

func (p *MarketBeatParser) GetKind() string {
	return config.KindMarketBeat
}

func (p *MarketBeatParser) Parse(doc dto.RawDocument) dto.ParseResult {
	return parseTable(doc, "table", marketBeatLayout, func(row tableRow, raw *dto.RawTrade) string {
		// Without a ticker column the company cell holds both the symbol
		// and the name in separate blocks.
		cell := row.cell(colCompany)
		if cell == nil {
			return ""
		}
		if symbol := utils.CleanToValidUTF8(cell.Find(".ticker-area").Text()); symbol != "" {
			if raw.Ticker == "" {
				raw.Ticker = symbol
			}
			raw.CompanyName = utils.CleanToValidUTF8(cell.Find(".title-area").Text())
		}
		return ""
	})
}
