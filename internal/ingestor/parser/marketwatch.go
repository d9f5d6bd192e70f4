package parser

import (
	"bytes"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/utils"

	"github.com/PuerkitoBio/goquery"
)

var marketWatchLayout = tableLayout{
	headers: map[column][]string{
		colTradeDate: {"date", "transaction date"},
		colTrader:    {"name", "insider"},
		colTitle:     {"relationship", "title"},
		colTradeType: {"transaction", "type"},
		colShares:    {"shares", "shares traded"},
		colPrice:     {"price", "cost"},
		colValue:     {"value"},
	},
	required: []column{colTrader, colTradeDate, colShares},
}

// MarketWatchParser reads the insider actions table of one ticker page.
// The ticker comes from the source configuration.
type MarketWatchParser struct{}

func NewMarketWatchParser() *MarketWatchParser {
	return &MarketWatchParser{}
}

func (p *MarketWatchParser) GetKind() string {
	return config.KindMarketWatch
}

func (p *MarketWatchParser) Parse(doc dto.RawDocument) dto.ParseResult {
	company := marketWatchCompany(doc.Body)
	return parseTable(doc, "table", marketWatchLayout, func(row tableRow, raw *dto.RawTrade) string {
		raw.Ticker = doc.Symbol
		raw.CompanyName = company
		return ""
	})
}

func marketWatchCompany(body []byte) string {
	html, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return utils.CleanToValidUTF8(html.Find("h1.company__name").First().Text())
}
