package ebb

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Band classifies a performance score into the ranges the difficulty
// adapter reacts to.
type Band int

const (
	Weak   Band = iota + 1 // score < 0.5; topic judged harder.
	Steady                 // 0.5 ≤ score ≤ 0.8; no adjustment.
	Strong                 // score > 0.8; topic judged easier.
)

// Band thresholds on the performance score.
const (
	weakBelow   = 0.5
	strongAbove = 0.8
)

var (
	bandNames  = [...]string{Weak: "Weak", Steady: "Steady", Strong: "Strong"}
	bandByName = map[string]Band{
		"Weak":   Weak,
		"Steady": Steady,
		"Strong": Strong,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Band(0)
	_ json.Marshaler           = Band(0)
	_ json.Unmarshaler         = (*Band)(nil)
	_ encoding.TextMarshaler   = Band(0)
	_ encoding.TextUnmarshaler = (*Band)(nil)
)

// BandOf returns the band a performance score in [0, 1] falls into.
func BandOf(score float64) Band {
	switch {
	case score < weakBelow:
		return Weak
	case score > strongAbove:
		return Strong
	default:
		return Steady
	}
}

// IsValid reports whether b is Weak, Steady or Strong.
func (b Band) IsValid() bool {
	return b >= Weak && b <= Strong
}

// String returns the name of the band. For invalid values it returns "Band(n)".
func (b Band) String() string {
	if b.IsValid() {
		return bandNames[b]
	}
	return fmt.Sprintf("Band(%d)", int(b))
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: band %d", ErrInvalidInput, int(b))
	}
	return []byte(bandNames[b]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	v, ok := bandByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: band %q", ErrInvalidInput, text)
	}
	*b = v
	return nil
}

// MarshalJSON implements json.Marshaler. Band serializes as a JSON string.
func (b Band) MarshalJSON() ([]byte, error) {
	text, err := b.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (b *Band) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: band %s", ErrInvalidInput, data)
	}
	return b.UnmarshalText([]byte(s))
}
