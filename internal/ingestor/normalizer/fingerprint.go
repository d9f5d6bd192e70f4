package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// NormalizeName lower-cases a person name, removes punctuation and sorts
// its tokens so "Cook Timothy D." and "Timothy D Cook" compare equal.
func NormalizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, name)
	tokens := strings.Fields(cleaned)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Fingerprint is the deterministic dedup key of a trade event.
func Fingerprint(ticker, traderName string, tradeDate time.Time, shares int64, price decimal.Decimal) string {
	key := strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(ticker)),
		NormalizeName(traderName),
		tradeDate.UTC().Format("2006-01-02"),
		strconv.FormatInt(shares, 10),
		price.StringFixed(4),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SyntheticFilingID builds a source-qualified id for sources without one.
func SyntheticFilingID(source, fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint + "|" + source))
	return source + ":" + hex.EncodeToString(sum[:])[:24]
}
