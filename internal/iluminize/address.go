// Package iluminize implements the Iluminize LED controller wire protocol:
// 12-byte command frames, channel scaling against per-channel maxima and a
// fire-and-forget TCP transport.
package iluminize

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the size of a device address on the wire.
const AddressLen = 3

// Address is the 3-byte sender identifier an appliance answers to.
type Address [AddressLen]byte

// ParseAddress parses a 6 hex digit sender string ("AABBCC") into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 2*AddressLen || !isHex(s) {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	copy(a[:], b)
	return a, nil
}

// String returns the address as upper-case hex, the form users configure.
func (a Address) String() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
