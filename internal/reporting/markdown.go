package reporting

import (
	"fmt"
	"strings"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/pricing"
)

// RenderRankingMessage renders the top n wallets of a snapshot as a Markdown chat message.
func RenderRankingMessage(snap *domain.RankingSnapshot, n int, opts MessageOptions) string {
	var sb strings.Builder

	top := snap.Top(n)
	sb.WriteString(fmt.Sprintf("🏆 Net Purchase Ranking (Top %d)\n\n", n))
	if len(top) == 0 {
		sb.WriteString("No purchases recorded yet.\n")
	}
	for i, s := range top {
		sb.WriteString(fmt.Sprintf("%d. `%s`: %s\n", i+1, AbbreviateAddress(s.Address), s.NetPurchase.StringFixed(2)))
	}

	if opts.BuyLink != "" {
		sb.WriteString(fmt.Sprintf("\n🛒 [BUY %s](%s)", opts.symbol(), opts.BuyLink))
	}
	sb.WriteString(fmt.Sprintf("\n💡 Net purchase amount is calculated as the total purchase volume minus the sell volume through swaps from block %d.", snap.StartBlock))
	if opts.Disclaimer {
		sb.WriteString("\n💡 Please note that it may not be accurate depending on the API network situation. The final ranking will be accurately tallied after additional transaction review.")
	}
	sb.WriteString(fmt.Sprintf("\n🕒 Updated %s UTC", snap.LastUpdated.UTC().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// RenderQuote renders a price quote as a Markdown chat message.
func RenderQuote(q *pricing.Quote, opts MessageOptions) string {
	var sb strings.Builder

	sym := opts.symbol()
	sb.WriteString(fmt.Sprintf("%s\n", sym))
	sb.WriteString(fmt.Sprintf("CA: `%s`\n", q.TokenAddress))
	sb.WriteString(fmt.Sprintf("💵 Price: $%s\n", q.TokenUSD.StringFixed(8)))
	sb.WriteString(fmt.Sprintf("💰 Market Cap: $%s\n", pricing.FormatMarketCap(q.MarketCap)))
	sb.WriteString(fmt.Sprintf("📊 %s/NATIVE: %s\n", sym, q.TokenPerNative.StringFixed(8)))
	if opts.BuyLink != "" {
		sb.WriteString(fmt.Sprintf("🛒 [BUY %s](%s)\n", sym, opts.BuyLink))
	}

	return sb.String()
}
