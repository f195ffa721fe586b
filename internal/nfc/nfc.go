// Package nfc polls a card reader for passive targets and encodes their UIDs.
package nfc

import (
	"encoding/hex"
	"errors"
	"time"
)

// ErrNoReader is returned when the reader does not answer during setup.
var ErrNoReader = errors.New("nfc: reader not responding")

// Reader polls for one passive target.
type Reader interface {
	// Poll waits up to timeout for a card. It returns nil, nil when no card
	// was presented.
	Poll(timeout time.Duration) ([]byte, error)
}

// EncodeUID returns the lowercase hex form used in the allow-list.
func EncodeUID(uid []byte) string {
	return hex.EncodeToString(uid)
}
