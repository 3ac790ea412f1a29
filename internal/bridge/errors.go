package bridge

import "errors"

var (
	// ErrLinkClosed reports that the datagram socket is gone, which the
	// process cannot recover from
	ErrLinkClosed = errors.New("adapter link closed")

	// ErrDeviceLost reports that the panel stopped delivering events
	ErrDeviceLost = errors.New("panel device lost")
)
