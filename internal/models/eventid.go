package models

import (
	"fmt"
	"strconv"
	"strings"
)

// EventID is the opaque identifier minted by the upstream indexer as
// "block:txIndex:eventIndex". Each component may be decimal or 0x-hex.
// IDs are unique across the store and totally ordered by the numeric triple.
type EventID string

type eventIDTriple struct {
	Block      uint64
	TxIndex    uint64
	EventIndex uint64
}

func (id EventID) parse() (eventIDTriple, error) {
	parts := strings.Split(string(id), ":")
	if len(parts) != 3 {
		return eventIDTriple{}, fmt.Errorf("event id %q: want block:txIndex:eventIndex", id)
	}
	var vals [3]uint64
	for i, p := range parts {
		p = strings.TrimSpace(p)
		base := 10
		if strings.HasPrefix(p, "0x") || strings.HasPrefix(p, "0X") {
			p = p[2:]
			base = 16
		}
		v, err := strconv.ParseUint(p, base, 64)
		if err != nil {
			return eventIDTriple{}, fmt.Errorf("event id %q component %d: %w", id, i, err)
		}
		vals[i] = v
	}
	return eventIDTriple{Block: vals[0], TxIndex: vals[1], EventIndex: vals[2]}, nil
}

// Valid reports whether id parses to a full triple.
func (id EventID) Valid() bool {
	_, err := id.parse()
	return err == nil
}

// Compare orders ids by (block, txIndex, eventIndex). Unparseable ids fall
// back to plain string comparison so ordering stays total.
func (id EventID) Compare(other EventID) int {
	a, errA := id.parse()
	b, errB := other.parse()
	if errA != nil || errB != nil {
		return strings.Compare(string(id), string(other))
	}
	if a.Block != b.Block {
		return cmpUint64(a.Block, b.Block)
	}
	if a.TxIndex != b.TxIndex {
		return cmpUint64(a.TxIndex, b.TxIndex)
	}
	return cmpUint64(a.EventIndex, b.EventIndex)
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
