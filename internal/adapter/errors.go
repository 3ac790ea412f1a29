package adapter

import "errors"

// ErrLinkClosed reports that the datagram socket to the bridge is gone.
// The process cannot recover a lost socket and should exit.
var ErrLinkClosed = errors.New("bridge link closed")
