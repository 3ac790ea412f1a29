package input

import "github.com/KevinKickass/GridDeck/internal/session"

// Physical key layout: 32 keys, row-major, 8 per row. The control keys
// sit on the right edge the way the stock overlay expects them.
const (
	KeyArrowUp    = 21
	KeyBrightness = 23
	KeyArrowLeft  = 28
	KeyArrowDown  = 29
	KeyArrowRight = 30
	KeyBurger     = 31

	// vertical scroll mode uses the bottom-right pair instead
	KeyVerticalUp   = 30
	KeyVerticalDown = 31

	KeyCount = session.VisibleCols * session.VisibleRows
)

// KeyToSlot converts a key index to window-local grid coordinates
func KeyToSlot(key int) (col, row int) {
	return key % session.VisibleCols, key / session.VisibleCols
}

// SlotToKey converts window-local grid coordinates to a key index
func SlotToKey(col, row int) int {
	return row*session.VisibleCols + col
}
