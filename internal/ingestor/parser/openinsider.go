package parser

import (
	"fmt"
	"regexp"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
)

// EDGAR archive paths carry the accession number without dashes.
var archiveAccession = regexp.MustCompile(`/Archives/edgar/data/\d+/(\d{10})(\d{2})(\d{6})`)

var openInsiderLayout = tableLayout{
	headers: map[column][]string{
		colFilingLink: {"filing date"},
		colFiledDate:  {"filing date"},
		colTradeDate:  {"trade date"},
		colTicker:     {"ticker"},
		colCompany:    {"company name", "company"},
		colTrader:     {"insider name", "insider"},
		colTitle:      {"title"},
		colTradeType:  {"trade type"},
		colPrice:      {"price"},
		colShares:     {"qty", "quantity"},
		colValue:      {"value"},
	},
	required: []column{colTicker, colTrader, colTradeDate, colTradeType},
}

// OpenInsiderParser reads the OpenInsider screener table.
type OpenInsiderParser struct{}

func NewOpenInsiderParser() *OpenInsiderParser {
	return &OpenInsiderParser{}
}

func (p *OpenInsiderParser) GetKind() string {
	return config.KindOpenInsider
}

func (p *OpenInsiderParser) Parse(doc dto.RawDocument) dto.ParseResult {
	seen := make(map[string]bool)
	return parseTable(doc, "table.tinytable, table", openInsiderLayout, func(row tableRow, raw *dto.RawTrade) string {
		link := row.link(colFilingLink)
		raw.FilingURL = link
		// One filing may show up as several rows; only the first keeps the
		// accession, the rest fall back to synthetic ids.
		if id := accessionFromURL(link); id != "" && !seen[id] {
			seen[id] = true
			raw.FilingID = id
		}
		return ""
	})
}

func accessionFromURL(u string) string {
	m := archiveAccession.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
}
