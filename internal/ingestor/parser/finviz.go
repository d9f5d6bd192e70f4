package parser

import (
	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
)

var finvizLayout = tableLayout{
	headers: map[column][]string{
		colTicker:     {"ticker"},
		colTrader:     {"owner", "insider"},
		colTitle:      {"relationship"},
		colTradeDate:  {"date"},
		colTradeType:  {"transaction"},
		colPrice:      {"cost", "price"},
		colShares:     {"#shares", "# shares", "shares"},
		colValue:      {"value ($)", "value"},
		colFiledDate:  {"sec form 4"},
		colFilingLink: {"sec form 4"},
	},
	required: []column{colTicker, colTrader, colTradeDate, colShares},
}

// FinvizParser reads the Finviz insider trading table. Finviz shows no
// company name, which the validator scores accordingly.
type FinvizParser struct{}

func NewFinvizParser() *FinvizParser {
	return &FinvizParser{}
}

func (p *FinvizParser) GetKind() string {
	return config.KindFinviz
}

func (p *FinvizParser) Parse(doc dto.RawDocument) dto.ParseResult {
	return parseTable(doc, "table", finvizLayout, func(row tableRow, raw *dto.RawTrade) string {
		raw.FilingURL = row.link(colFilingLink)
		return ""
	})
}
