package reporting

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"netbuy-ranker/internal/domain"
)

// RenderRankingTable writes stats as an aligned terminal table.
func RenderRankingTable(w io.Writer, stats []domain.WalletStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Wallet", "Net purchase", "Buy", "Sell"})
	table.SetAutoFormatHeaders(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	for i, s := range stats {
		table.Append([]string{
			strconv.Itoa(i + 1),
			s.Address,
			s.NetPurchase.StringFixed(2),
			s.BuyTotal.StringFixed(2),
			s.SellTotal.StringFixed(2),
		})
	}
	table.Render()
}
