package render

// Panel is the hardware surface a renderer paints on. Implementations
// must tolerate being called from a single goroutine only.
type Panel interface {
	// SetKey lights one key with a 0xRRGGBB color, 0 turns it off
	SetKey(key int, color uint32) error
	// Clear turns every key off
	Clear() error
	Close() error
}
