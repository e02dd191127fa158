package transport

import "github.com/pkg/errors"

// ErrDisconnected is returned by Send when no connection is currently
// established; the reconnect loop will keep trying in the background.
var ErrDisconnected = errors.New("replication transport: not connected")
