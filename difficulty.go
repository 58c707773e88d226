package knotcoin

import "github.com/holiman/uint256"

// NextTarget computes the retargeted PoW target after one 60-block
// window, given the old target and the actual elapsed seconds across the
// window. Clamped to a 4x window around the expected 3600 seconds; the
// product is computed in 256-bit arithmetic via github.com/holiman/uint256
// since target headroom routinely exceeds 64 bits.
func NextTarget(oldTarget Hash, actualSecs uint64) Hash {
	clamped := actualSecs
	if clamped < RetargetExpectedSecs/4 {
		clamped = RetargetExpectedSecs / 4
	}
	if clamped > RetargetExpectedSecs*4 {
		clamped = RetargetExpectedSecs * 4
	}

	old := new(uint256.Int).SetBytes(oldTarget[:])
	actual := uint256.NewInt(clamped)
	expected := uint256.NewInt(RetargetExpectedSecs)
	max := new(uint256.Int).SetAllOne()

	maxDivActual := new(uint256.Int).Div(max, actual)

	// old*actual/expected == q*actual + r*actual/expected, where
	// old = q*expected + r, so no intermediate exceeds 256 bits.
	q := new(uint256.Int).Div(old, expected)
	var result *uint256.Int
	if maxDivActual.Lt(q) {
		result = max
	} else {
		rem := new(uint256.Int).Mod(old, expected)
		rem.Mul(rem, actual)
		rem.Div(rem, expected)
		result = new(uint256.Int).Mul(q, actual)
		result.Add(result, rem)
		if result.Lt(rem) {
			result = max
		}
		if result.IsZero() {
			result = uint256.NewInt(1)
		}
	}

	bytes := result.Bytes32()
	var out Hash
	copy(out[:], bytes[:])
	return out
}
