package domain

import "github.com/shopspring/decimal"

// TransferRecord is one on-chain token transfer as stored in the ledger.
// Everything except Category is immutable once first observed.
type TransferRecord struct {
	ID          string          // parent transaction hash, ledger primary key
	FromAddress string          // lower-cased sender
	ToAddress   string          // lower-cased receiver
	Amount      decimal.Decimal // raw amount shifted by token decimals
	BlockNumber int64           // ordering proxy
	Category    Category        // derived; empty until first classified
}

// Clone returns a copy safe to hand out of a store.
func (r *TransferRecord) Clone() *TransferRecord {
	c := *r
	return &c
}
