package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// transfersResponse is the body of GET /tokens/{token}/transfers.
// Result is a pointer so a missing field can be told apart from an empty page.
type transfersResponse struct {
	Result *[]rawTransfer `json:"result"`
}

// rawTransfer is one entry as sent by the explorer. Numeric fields arrive either as
// JSON numbers or as numeric strings.
type rawTransfer struct {
	BlockNumber json.Number `json:"blockNumber"`
	FromAddress string      `json:"fromAddress"`
	ToAddress   string      `json:"toAddress"`
	Amount      json.Number `json:"amount"`
	Decimals    json.Number `json:"decimals"`
	ParentHash  string      `json:"parentHash"`
}

// FetchError reports a failed page request. Any FetchError aborts the current walk.
type FetchError struct {
	Page       int
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %d: status %d: %v", e.Page, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is or wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
