package telegram

import (
	"fmt"
	"strings"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func signalIcon(signal entity.SignalType) string {
	switch signal {
	case entity.SignalBuy:
		return "🟢"
	case entity.SignalSell:
		return "🔴"
	default:
		return "🟡"
	}
}

// FormatTradeAlert formats a newly stored trade into a Markdown message.
func FormatTradeAlert(trade *entity.InsiderTrade) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s *Insider %s* `%s`\n\n", signalIcon(trade.SignalType), trade.TradeType, escape(trade.Ticker)))
	if trade.CompanyName != "" {
		b.WriteString(fmt.Sprintf("🏢 *Company:* %s\n", escape(trade.CompanyName)))
	}
	b.WriteString(fmt.Sprintf("👤 *Insider:* %s", escape(trade.TraderName)))
	if trade.TraderTitle != "" {
		b.WriteString(fmt.Sprintf(" (%s)", escape(trade.TraderTitle)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("📊 *Shares:* %d @ $%s\n", trade.Shares, trade.PricePerShare.StringFixed(2)))
	b.WriteString(fmt.Sprintf("💰 *Value:* $%s\n", trade.TotalValue.StringFixed(2)))
	b.WriteString(fmt.Sprintf("📅 *Traded:* %s", trade.TradeDate.Format("2006-01-02")))
	if trade.FiledDate != nil {
		b.WriteString(fmt.Sprintf(" · *Filed:* %s", trade.FiledDate.Format("2006-01-02")))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("🎯 *Confidence:* %d%% · _%s_\n", trade.Confidence, escape(trade.SourceName)))
	if trade.SourceURL != "" {
		b.WriteString(fmt.Sprintf("🔗 [Filing](%s)\n", trade.SourceURL))
	}

	return b.String()
}

// FormatRunSummary formats the outcome of one ingestion run.
func FormatRunSummary(summary dto.RunSummary) string {
	var b strings.Builder

	icon := "✅"
	if summary.Status != string(entity.RunStatusCompleted) {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s *Ingestion run* `%s` %s\n\n", icon, escape(summary.Source), summary.Status))
	b.WriteString(fmt.Sprintf("📥 *Processed:* %d\n", summary.Processed))
	b.WriteString(fmt.Sprintf("♻️ *Duplicates:* %d · *Updated:* %d\n", summary.Duplicates, summary.Updated))
	b.WriteString(fmt.Sprintf("🚫 *Invalid:* %d · *Blocked:* %d\n", summary.Invalid, summary.Blocked))
	b.WriteString(fmt.Sprintf("❗ *Errors:* %d\n", summary.Errors))
	b.WriteString(fmt.Sprintf("💰 *Total value:* $%s\n", summary.TotalValueUSD.StringFixed(2)))
	if summary.Error != "" {
		kind := summary.ErrorKind
		if kind == "" {
			kind = "Error"
		}
		b.WriteString(fmt.Sprintf("\n*%s:* %s\n", kind, escape(summary.Error)))
	}
	b.WriteString(fmt.Sprintf("\n_run %s_", summary.RunID))

	return b.String()
}
