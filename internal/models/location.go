package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is a packed 16-bit map coordinate: low 8 bits = x, high 8 bits = y.
type Location uint16

const MapSize = 256 // lands per axis

func LocationFromXY(x, y uint8) Location {
	return Location(uint16(x) | uint16(y)<<8)
}

// ParseLocation accepts decimal or 0x-hex packed coordinates.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid location %q: %w", s, err)
	}
	return Location(v), nil
}

// UnmarshalJSON accepts both JSON numbers and hex/decimal strings, which
// is how locations arrive in upstream payloads.
func (l *Location) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseLocation(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l Location) X() uint8 { return uint8(l & 0xFF) }
func (l Location) Y() uint8 { return uint8(l >> 8) }

// Display is the packed decimal form used in land_historical ids and API
// responses.
func (l Location) Display() string {
	return strconv.FormatUint(uint64(l), 10)
}

func (l Location) String() string {
	return fmt.Sprintf("(%d,%d)", l.X(), l.Y())
}

// AreaNeighbors returns the up-to-8 grid neighbors of l, clipped to the map.
// Corners yield 3, edges 5, interior cells 8.
func (l Location) AreaNeighbors() []Location {
	x, y := int(l.X()), int(l.Y())
	neighbors := make([]Location, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= MapSize || ny < 0 || ny >= MapSize {
				continue
			}
			neighbors = append(neighbors, LocationFromXY(uint8(nx), uint8(ny)))
		}
	}
	return neighbors
}

// Area returns l plus its neighbors (the 3x3 block clipped to the map).
func (l Location) Area() []Location {
	return append([]Location{l}, l.AreaNeighbors()...)
}
