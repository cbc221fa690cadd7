package inventory

import (
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Replay folds history rows onto the stock the row started with and returns the
// resulting stock. Rows must be in write order; a gap in the chain is an error.
func Replay(initial int64, rows []models.InventoryHistory) (int64, error) {
	stock := initial
	for i, row := range rows {
		if row.PreviousStock != stock {
			return 0, fmt.Errorf("history row %d starts at %d, expected %d", row.Seq, row.PreviousStock, stock)
		}
		if row.NewStock != row.PreviousStock+row.Adjustment {
			return 0, fmt.Errorf("history row %d does not balance", row.Seq)
		}
		if i > 0 && row.Seq <= rows[i-1].Seq {
			return 0, fmt.Errorf("history rows out of order at seq %d", row.Seq)
		}
		stock = row.NewStock
	}
	return stock, nil
}
