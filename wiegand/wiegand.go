// Package wiegand parses reader frames of the form "[<bits>,<hex>]" and
// unpacks the Wiegand card layouts it knows about. Only the 26-bit H10301
// layout is supported.
package wiegand

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedFrame is returned when a frame does not look like "[<bits>,<data>]".
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnsupportedFormat is returned for bit lengths without an unpacker.
	ErrUnsupportedFormat = errors.New("unsupported wiegand format")

	// ErrInvalidCardData is returned when the card payload is not a hex number.
	ErrInvalidCardData = errors.New("invalid card data")
)

// The payload group accepts any alphanumerics so that "[26,XYZ]" is reported
// as bad card data rather than a malformed frame.
var framePattern = regexp.MustCompile(`^\[(\d+),([0-9A-Za-z]+)\]$`)

// 26-bit layout: 1 parity, 8 facility, 16 card, 1 parity.
const (
	facilityMask26  = 0b1111111100000000000000000
	cardMask26      = 0b0000000011111111111111110
	facilityShift26 = 17
	cardShift26     = 1
)

// Message is a frame that matched the wire pattern.
type Message struct {
	BitLength int
	CardData  string
}

// Card holds the fields unpacked from a card payload.
type Card struct {
	Raw          uint64
	FacilityCode uint8
	CardCode     uint16
}

// formats maps bit length to unpacker.
var formats = map[int]func(uint64) Card{
	26: Decode26,
}

// Parse matches frame against the wire pattern. Surrounding whitespace is
// ignored. A well-formed frame whose bit count does not fit an int is
// ErrUnsupportedFormat.
func Parse(frame string) (Message, error) {
	m := framePattern.FindStringSubmatch(strings.TrimSpace(frame))
	if m == nil {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformedFrame, frame)
	}

	// The pattern admits only digits, so a conversion failure is a bit
	// count too large for any known format.
	bits, err := strconv.Atoi(m[1])
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s bits", ErrUnsupportedFormat, m[1])
	}

	return Message{BitLength: bits, CardData: m[2]}, nil
}

// Decode dispatches the message to the unpacker for its bit length.
func (m Message) Decode() (Card, error) {
	unpack, ok := formats[m.BitLength]
	if !ok {
		return Card{}, fmt.Errorf("%w: %d bits", ErrUnsupportedFormat, m.BitLength)
	}

	n, err := strconv.ParseUint(m.CardData, 16, 64)
	if err != nil {
		return Card{}, fmt.Errorf("%w: %q: %v", ErrInvalidCardData, m.CardData, err)
	}

	return unpack(n), nil
}

// Decode parses frame and unpacks it.
func Decode(frame string) (Card, error) {
	m, err := Parse(frame)
	if err != nil {
		return Card{}, err
	}
	return m.Decode()
}

// Decode26 unpacks a 26-bit Wiegand value. The two parity bits are masked
// off and not checked. Bits above bit 25 are ignored.
func Decode26(n uint64) Card {
	return Card{
		Raw:          n,
		FacilityCode: uint8((n & facilityMask26) >> facilityShift26),
		CardCode:     uint16((n & cardMask26) >> cardShift26),
	}
}

// Value reassembles the 26-bit value with both parity bits cleared.
func (c Card) Value() uint64 {
	return uint64(c.FacilityCode)<<facilityShift26 | uint64(c.CardCode)<<cardShift26
}

func (c Card) String() string {
	return fmt.Sprintf("facility %d card %d", c.FacilityCode, c.CardCode)
}

// Reason returns a short machine-readable label for a decode error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrInvalidCardData):
		return "invalid_card_data"
	default:
		return "unknown"
	}
}
