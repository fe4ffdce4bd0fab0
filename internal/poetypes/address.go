// Package poetypes holds the Address value type shared by the
// engagement, stake, and validator engines. Decimal portions live in
// the decimal package; coin amounts are plain *big.Int values.
package poetypes

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

// AddressLength is the size of an Address in bytes, matching the host
// chain's account address width.
const AddressLength = 20

// Address is an opaque account identifier. The host is responsible for
// producing and validating these; the engines only compare, sort, and
// serialize them.
type Address [AddressLength]byte

// ZeroAddress is the empty address, used as a sentinel for "unset".
var ZeroAddress = Address{}

// BytesToAddress right-aligns b into an Address, truncating on the left
// if b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > AddressLength {
		copy(addr[:], b[len(b)-AddressLength:])
	} else {
		copy(addr[AddressLength-len(b):], b)
	}
	return addr
}

// HexToAddress parses a "0x"-prefixed or bare hex string into an Address.
func HexToAddress(s string) (Address, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	if len(s) != AddressLength*2 {
		return ZeroAddress, fmt.Errorf("invalid address length: expected %d hex chars, got %d", AddressLength*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid hex string: %w", err)
	}
	return BytesToAddress(b), nil
}

// ParseAddress is HexToAddress with an explicit empty-string rejection,
// for call sites parsing required fields.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return ZeroAddress, errors.New("empty address string")
	}
	return HexToAddress(s)
}

// Hex returns the "0x"-prefixed hex representation.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// Equal reports whether two addresses hold the same bytes.
func (a Address) Equal(other Address) bool { return bytes.Equal(a[:], other[:]) }

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool { return a.Equal(ZeroAddress) }

// Less orders addresses lexicographically by their byte representation;
// used as the deterministic tie-break across the points index and
// validator selection.
func (a Address) Less(other Address) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

// MarshalJSON renders the address as a JSON hex string, matching the
// message surface's "addresses as strings" convention.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Hex() + `"`), nil
}

// UnmarshalJSON parses a JSON hex string into the address.
func (a *Address) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("address must be a JSON string, got %s", s)
	}
	parsed, err := HexToAddress(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SortAddresses sorts addresses ascending in place. Used by list-members
// and other ascending-by-address queries.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
