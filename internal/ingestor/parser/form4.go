package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strings"

	"insidertrack/internal/ingestor/config"
	"insidertrack/internal/ingestor/dto"

	"github.com/shopspring/decimal"
)

var (
	form4MinPrice = decimal.RequireFromString("0.01")
	form4MaxPrice = decimal.NewFromInt(10_000)

	accessionHeader = regexp.MustCompile(`ACCESSION NUMBER:\s*(\d{10}-\d{2}-\d{6})`)
	filedHeader     = regexp.MustCompile(`FILED AS OF DATE:\s*(\d{8})`)
)

// Form 4 transaction codes kept by the parser: open market purchase and sale.
var form4Codes = map[string]bool{"P": true, "S": true}

type form4Value struct {
	Value string `xml:"value"`
}

type form4Document struct {
	XMLName xml.Name `xml:"ownershipDocument"`
	Issuer  struct {
		Name   string `xml:"issuerName"`
		Symbol string `xml:"issuerTradingSymbol"`
	} `xml:"issuer"`
	Owners []struct {
		Name         string `xml:"reportingOwnerId>rptOwnerName"`
		Relationship struct {
			IsDirector        string `xml:"isDirector"`
			IsOfficer         string `xml:"isOfficer"`
			IsTenPercentOwner string `xml:"isTenPercentOwner"`
			IsOther           string `xml:"isOther"`
			OfficerTitle      string `xml:"officerTitle"`
			OtherText         string `xml:"otherText"`
		} `xml:"reportingOwnerRelationship"`
	} `xml:"reportingOwner"`
	NonDerivative []form4Transaction `xml:"nonDerivativeTable>nonDerivativeTransaction"`
	Derivative    []form4Transaction `xml:"derivativeTable>derivativeTransaction"`
}

type form4Transaction struct {
	Date   form4Value `xml:"transactionDate"`
	Code   string     `xml:"transactionCoding>transactionCode"`
	Shares form4Value `xml:"transactionAmounts>transactionShares"`
	Price  form4Value `xml:"transactionAmounts>transactionPricePerShare"`
}

// Form4Parser reads SEC Form 4 ownership documents.
type Form4Parser struct{}

func NewForm4Parser() *Form4Parser {
	return &Form4Parser{}
}

func (p *Form4Parser) GetKind() string {
	return config.KindSEC
}

// Parse accepts a bare ownership document or one embedded in an EDGAR
// submission envelope or an HTML page.
func (p *Form4Parser) Parse(doc dto.RawDocument) dto.ParseResult {
	var result dto.ParseResult

	body, ok := ownershipDocument(doc.Body)
	if !ok {
		result.Skip(0, "ownershipDocument not found")
		return result
	}
	var form form4Document
	if err := xml.Unmarshal(body, &form); err != nil {
		result.Skip(0, "malformed ownership document: "+err.Error())
		return result
	}
	if len(form.Owners) == 0 {
		result.Skip(0, "ownership document without reporting owner")
		return result
	}

	filingID := doc.FilingID
	if filingID == "" {
		if m := accessionHeader.FindSubmatch(doc.Body); m != nil {
			filingID = string(m[1])
		}
	}
	filedDate := doc.FiledDate
	if filedDate == "" {
		if m := filedHeader.FindSubmatch(doc.Body); m != nil {
			filedDate = string(m[1])
		}
	}

	// Derivative rows are awards and option grants, never open market trades.
	result.Filtered += len(form.Derivative)

	selected := 0
	for _, tx := range form.NonDerivative {
		if form4Codes[strings.TrimSpace(tx.Code)] {
			selected++
		}
	}

	owner := form.Owners[0]
	title := ownerTitle(owner.Relationship.IsDirector, owner.Relationship.IsOfficer, owner.Relationship.IsTenPercentOwner,
		owner.Relationship.IsOther, owner.Relationship.OfficerTitle, owner.Relationship.OtherText)

	for i, tx := range form.NonDerivative {
		code := strings.TrimSpace(tx.Code)
		if !form4Codes[code] {
			result.Filtered++
			continue
		}

		price, err := decimal.NewFromString(strings.TrimSpace(tx.Price.Value))
		if err != nil {
			result.Skip(i, fmt.Sprintf("unreadable price %q", tx.Price.Value))
			continue
		}
		if price.LessThan(form4MinPrice) || price.GreaterThan(form4MaxPrice) {
			result.Skip(i, fmt.Sprintf("price %s outside plausible range", price.String()))
			continue
		}

		id := filingID
		if id != "" && selected > 1 {
			id = fmt.Sprintf("%s:%d", filingID, i+1)
		}
		result.Trades = append(result.Trades, dto.RawTrade{
			FilingID:    id,
			FilingURL:   doc.URL,
			Ticker:      form.Issuer.Symbol,
			CompanyName: form.Issuer.Name,
			TraderName:  owner.Name,
			TraderTitle: title,
			TradeType:   code,
			Shares:      tx.Shares.Value,
			Price:       tx.Price.Value,
			TradeDate:   tx.Date.Value,
			FiledDate:   filedDate,
			SourceURL:   doc.URL,
		})
	}
	return result
}

// ownershipDocument extracts the <ownershipDocument> element, unescaping
// it first when a browser rendered the XML as HTML text.
func ownershipDocument(body []byte) ([]byte, bool) {
	if !bytes.Contains(body, []byte("<ownershipDocument")) && bytes.Contains(body, []byte("&lt;ownershipDocument")) {
		body = []byte(html.UnescapeString(string(body)))
	}
	start := bytes.Index(body, []byte("<ownershipDocument"))
	if start < 0 {
		return nil, false
	}
	const closing = "</ownershipDocument>"
	end := bytes.Index(body[start:], []byte(closing))
	if end < 0 {
		return nil, false
	}
	return body[start : start+end+len(closing)], true
}

func ownerTitle(director, officer, tenPercent, other, officerTitle, otherText string) string {
	flag := func(s string) bool {
		s = strings.TrimSpace(strings.ToLower(s))
		return s == "1" || s == "true"
	}
	var parts []string
	if flag(officer) && strings.TrimSpace(officerTitle) != "" {
		parts = append(parts, strings.TrimSpace(officerTitle))
	}
	if flag(director) {
		parts = append(parts, "Director")
	}
	if flag(tenPercent) {
		parts = append(parts, "10% Owner")
	}
	if flag(other) && strings.TrimSpace(otherText) != "" {
		parts = append(parts, strings.TrimSpace(otherText))
	}
	return strings.Join(parts, ", ")
}
