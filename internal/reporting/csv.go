package reporting

import (
	"fmt"
	"strings"

	"netbuy-ranker/internal/domain"
)

// RenderCSV renders wallet stats as CSV, one row per wallet in ranking order.
func RenderCSV(stats []domain.WalletStats) string {
	var sb strings.Builder

	// Header
	sb.WriteString("rank,address,net_purchase,buy,sell\n")

	// Rows
	for i, s := range stats {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s\n",
			i+1,
			s.Address,
			s.NetPurchase.String(),
			s.BuyTotal.String(),
			s.SellTotal.String(),
		))
	}

	return sb.String()
}
