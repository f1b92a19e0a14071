// Package reporting renders rankings and quotes for chat messages, terminals and exports.
package reporting

// MessageOptions controls the text around a rendered ranking or quote.
type MessageOptions struct {
	TokenSymbol  string // e.g. "MOODENG"; used in link labels
	TokenAddress string
	BuyLink      string // swap page URL; omitted when empty
	Disclaimer   bool   // append the accuracy notice
}

func (o MessageOptions) symbol() string {
	if o.TokenSymbol == "" {
		return "TOKEN"
	}
	return o.TokenSymbol
}

// AbbreviateAddress shortens an address to its first 6 and last 4 characters.
func AbbreviateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
