package domain

import "github.com/shopspring/decimal"

// PriceLevel is a single price+size entry on one side of a price ladder.
// A size of zero means the level is no longer present; zero-size levels are
// never stored in a ladder.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// LevelDiff records how the size at a single price changed when an
// observation was applied. It is only produced when OldSize != NewSize.
type LevelDiff struct {
	Price   decimal.Decimal `json:"price"`
	OldSize decimal.Decimal `json:"old_size"`
	NewSize decimal.Decimal `json:"new_size"`
}

// String renders the diff as "old->new@price" for logs and traces.
func (d LevelDiff) String() string {
	return d.OldSize.String() + "->" + d.NewSize.String() + "@" + d.Price.String()
}
