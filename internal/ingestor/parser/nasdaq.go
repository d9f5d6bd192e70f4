package parser

import (
	"encoding/json"
	"strings"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"
)

type nasdaqResponse struct {
	Data *struct {
		Title            string `json:"title"`
		TransactionTable struct {
			Rows []nasdaqRow `json:"rows"`
		} `json:"transactionTable"`
	} `json:"data"`
	Status struct {
		RCode int `json:"rCode"`
	} `json:"status"`
}

type nasdaqRow struct {
	Insider         string `json:"insider"`
	Relation        string `json:"relation"`
	LastDate        string `json:"lastDate"`
	TransactionType string `json:"transactionType"`
	SharesTraded    string `json:"sharesTraded"`
	LastPrice       string `json:"lastPrice"`
	URL             string `json:"url"`
}

// NasdaqParser reads the NASDAQ insider activity API for one symbol.
type NasdaqParser struct{}

func NewNasdaqParser() *NasdaqParser {
	return &NasdaqParser{}
}

func (p *NasdaqParser) GetKind() string {
	return config.KindNasdaq
}

func (p *NasdaqParser) Parse(doc dto.RawDocument) dto.ParseResult {
	var result dto.ParseResult

	var resp nasdaqResponse
	if err := json.Unmarshal(doc.Body, &resp); err != nil {
		result.Skip(0, "malformed json: "+err.Error())
		return result
	}
	if resp.Data == nil {
		result.Skip(0, "response without data")
		return result
	}

	company := strings.TrimSpace(strings.TrimSuffix(resp.Data.Title, "Insider Activity"))
	for i, row := range resp.Data.TransactionTable.Rows {
		if strings.TrimSpace(row.Insider) == "" && strings.TrimSpace(row.SharesTraded) == "" {
			result.Skip(i, "empty row")
			continue
		}
		result.Trades = append(result.Trades, dto.RawTrade{
			FilingURL:   row.URL,
			Ticker:      doc.Symbol,
			CompanyName: company,
			TraderName:  row.Insider,
			TraderTitle: row.Relation,
			TradeType:   row.TransactionType,
			Shares:      row.SharesTraded,
			Price:       row.LastPrice,
			TradeDate:   row.LastDate,
			SourceURL:   doc.URL,
		})
	}
	return result
}
