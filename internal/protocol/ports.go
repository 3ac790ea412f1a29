package protocol

// Port derivation. Each configured device gets its own loopback port
// pair spaced portStride apart so multiple devices never collide; the
// debug mirror shifts both ports by DebugPortOffset for wire tooling.
const (
	baseBridgePort  = 9000 // bridge listens here, adapter sends here
	baseAdapterPort = 9001 // adapter listens here, bridge sends here
	portStride      = 10

	DebugPortOffset = 1000
)

// BridgePort returns the port the bridge process binds for a device
func BridgePort(displayOrder int) int {
	return baseBridgePort + displayOrder*portStride
}

// AdapterPort returns the port the adapter instance binds for a device
func AdapterPort(displayOrder int) int {
	return baseAdapterPort + displayOrder*portStride
}
