package domain

// Category is the derived classification of a transfer relative to the swap set.
type Category string

const (
	CategoryBuy     Category = "buy"
	CategorySell    Category = "sell"
	CategorySkip    Category = "skip"
	CategoryUnknown Category = "unknown"
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryBuy, CategorySell, CategorySkip, CategoryUnknown:
		return true
	}
	return false
}

// Counted reports whether transfers of this category contribute to wallet totals.
func (c Category) Counted() bool {
	return c == CategoryBuy || c == CategorySell
}
