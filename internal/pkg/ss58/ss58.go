// Package ss58 encodes and decodes Substrate SS58 account addresses.
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SubstratePrefix is the generic Substrate network prefix, used by dev chains.
const SubstratePrefix uint16 = 42

const (
	accountIDSize = 32
	checksumSize  = 2
)

// MaxPrefix is the largest network prefix SS58 can represent.
const MaxPrefix uint16 = 1<<14 - 1

var (
	// ErrInvalidAddress is returned for strings that are not SS58 account addresses.
	ErrInvalidAddress = errors.New("ss58: invalid address")

	// ErrBadChecksum is returned when the checksum bytes do not match.
	ErrBadChecksum = errors.New("ss58: checksum mismatch")

	// ErrInvalidPrefix is returned for network prefixes above MaxPrefix.
	ErrInvalidPrefix = errors.New("ss58: prefix out of range")
)

var checksumPreimage = []byte("SS58PRE")

// Encode renders a 32-byte account id as an SS58 address for the given
// network prefix.
func Encode(accountID [32]byte, prefix uint16) (string, error) {
	if prefix > MaxPrefix {
		return "", fmt.Errorf("%w: %d", ErrInvalidPrefix, prefix)
	}

	var data []byte
	if prefix < 64 {
		data = append(data, byte(prefix))
	} else {
		data = append(data,
			byte((prefix&0b1111_1100)>>2)|0b0100_0000,
			byte(prefix>>8)|byte(prefix&0b11)<<6,
		)
	}
	data = append(data, accountID[:]...)
	data = append(data, checksum(data)...)
	return base58.Encode(data), nil
}

// Decode parses an SS58 account address and returns the account id and
// network prefix.
func Decode(address string) ([32]byte, uint16, error) {
	var accountID [32]byte

	raw, err := base58.Decode(address)
	if err != nil {
		return accountID, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) == 0 {
		return accountID, 0, ErrInvalidAddress
	}

	var prefix uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return accountID, 0, ErrInvalidAddress
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
		prefixLen = 2
	default:
		return accountID, 0, ErrInvalidAddress
	}

	if len(raw) != prefixLen+accountIDSize+checksumSize {
		return accountID, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(raw))
	}

	body := raw[:prefixLen+accountIDSize]
	if !bytes.Equal(checksum(body), raw[len(body):]) {
		return accountID, 0, ErrBadChecksum
	}

	copy(accountID[:], body[prefixLen:])
	return accountID, prefix, nil
}

func checksum(data []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPreimage)
	h.Write(data)
	return h.Sum(nil)[:checksumSize]
}
