package parser

import (
	"bytes"
	"strings"

	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/utils"

	"github.com/PuerkitoBio/goquery"
)

type column int

const (
	colTicker column = iota
	colCompany
	colTrader
	colTitle
	colTradeType
	colShares
	colPrice
	colValue
	colTradeDate
	colFiledDate
	colFilingLink
)

// tableLayout maps named columns to the header texts a site uses for them.
// Columns are located by header, so a reordered table still parses and a
// renamed header is a one-line change here.
type tableLayout struct {
	headers  map[column][]string
	required []column
}

// locate returns the index of every known column in headers.
func (l tableLayout) locate(headers []string) (map[column]int, bool) {
	index := make(map[column]int, len(l.headers))
	for i, h := range headers {
		h = normalizeHeader(h)
		for col, synonyms := range l.headers {
			if _, done := index[col]; done {
				continue
			}
			for _, s := range synonyms {
				if h == s {
					index[col] = i
					break
				}
			}
		}
	}
	for _, col := range l.required {
		if _, ok := index[col]; !ok {
			return index, false
		}
	}
	return index, true
}

// normalizeHeader lower-cases h and folds every space, NBSP included.
func normalizeHeader(h string) string {
	return strings.ToLower(utils.CleanToValidUTF8(h))
}

// tableRow gives named access to the cells of one row.
type tableRow struct {
	cells *goquery.Selection
	index map[column]int
}

func (r tableRow) cell(col column) *goquery.Selection {
	i, ok := r.index[col]
	if !ok || i >= r.cells.Length() {
		return nil
	}
	return r.cells.Eq(i)
}

func (r tableRow) text(col column) string {
	c := r.cell(col)
	if c == nil {
		return ""
	}
	return utils.CleanToValidUTF8(c.Text())
}

func (r tableRow) link(col column) string {
	c := r.cell(col)
	if c == nil {
		return ""
	}
	href, _ := c.Find("a").First().Attr("href")
	return strings.TrimSpace(href)
}

// rawTrade fills the fields every HTML table shares.
func (r tableRow) rawTrade() dto.RawTrade {
	return dto.RawTrade{
		Ticker:      r.text(colTicker),
		CompanyName: r.text(colCompany),
		TraderName:  r.text(colTrader),
		TraderTitle: r.text(colTitle),
		TradeType:   r.text(colTradeType),
		Shares:      r.text(colShares),
		Price:       r.text(colPrice),
		Value:       r.text(colValue),
		TradeDate:   r.text(colTradeDate),
		FiledDate:   r.text(colFiledDate),
	}
}

// findTable returns the first table in doc whose header row satisfies the
// layout, together with its column index.
func findTable(doc *goquery.Document, selector string, layout tableLayout) (*goquery.Selection, map[column]int, bool) {
	var (
		found *goquery.Selection
		index map[column]int
	)
	doc.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
		idx, ok := layout.locate(headerTexts(table))
		if ok {
			found, index = table, idx
			return false
		}
		return true
	})
	return found, index, found != nil
}

func headerTexts(table *goquery.Selection) []string {
	header := table.Find("thead tr").First()
	if header.Length() == 0 {
		header = table.Find("tr").First()
	}
	cells := header.Find("th")
	if cells.Length() == 0 {
		cells = header.Find("td")
	}
	return cells.Map(func(_ int, s *goquery.Selection) string { return s.Text() })
}

// bodyRows returns the data rows of table, excluding the header row.
func bodyRows(table *goquery.Selection) *goquery.Selection {
	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		rows = table.Find("tr").Slice(1, goquery.ToEnd)
	}
	return rows.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("td").Length() > 0
	})
}

// parseTable is the shared body of the HTML parsers. enrich may complete
// or reject the raw trade of each row; returning a non-empty reason skips it.
func parseTable(doc dto.RawDocument, selector string, layout tableLayout, enrich func(tableRow, *dto.RawTrade) string) dto.ParseResult {
	var result dto.ParseResult

	html, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		result.Skip(0, "unreadable html: "+err.Error())
		return result
	}
	table, index, ok := findTable(html, selector, layout)
	if !ok {
		result.Skip(0, "insider table not found")
		return result
	}

	width := 0
	for _, i := range index {
		width = max(width, i+1)
	}

	bodyRows(table).Each(func(i int, tr *goquery.Selection) {
		row := tableRow{cells: tr.Find("td"), index: index}
		if row.cells.Length() < width {
			result.Skip(i, "row has fewer cells than header")
			return
		}
		raw := row.rawTrade()
		raw.SourceURL = doc.URL
		if enrich != nil {
			if reason := enrich(row, &raw); reason != "" {
				result.Skip(i, reason)
				return
			}
		}
		result.Trades = append(result.Trades, raw)
	})
	return result
}
