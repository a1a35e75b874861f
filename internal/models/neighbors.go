package models

import "time"

// NeighborsInfo is the unpacked form of the on-chain u128
// neighbors_info_packed field on LandStake:
//
//	bits 0-15   earliest claim neighbor location
//	bits 16-23  number of active neighbors
//	bits 24+    earliest claim neighbor unix timestamp
type NeighborsInfo struct {
	EarliestClaimNeighborLocation Location
	NumActiveNeighbors            int
	EarliestClaimNeighborTime     time.Time
}

// UnpackNeighborsInfo decodes the packed field. The value arrives as a
// u128 inside a U256 envelope.
func UnpackNeighborsInfo(packed U256) NeighborsInfo {
	low := packed.Uint64()
	return NeighborsInfo{
		EarliestClaimNeighborLocation: Location(low & 0xFFFF),
		NumActiveNeighbors:            int((low >> 16) & 0xFF),
		EarliestClaimNeighborTime:     time.Unix(int64(packed.Rsh(24).Uint64()), 0).UTC(),
	}
}
