package knotcoin

// BaseReward computes the per-block coinbase reward in knots for the
// given height, following the three-phase emission curve: a linear ramp
// through Phase1End, a flat plateau through Phase2End, and a fixed-point
// logarithmic decay beyond that.
func BaseReward(height uint64) uint64 {
	switch {
	case height <= Phase1End:
		return phase1Reward(height)
	case height <= Phase2End:
		return KnotsPerKot
	default:
		return phase3Reward(height)
	}
}

func phase1Reward(height uint64) uint64 {
	return Phase1StartKnots + (Phase1DeltaKnots*height)/Phase1End
}

// phase3Reward implements reward = (U * 2^16) / log2_fixed16(x) using an
// integer Newton-style bit-extraction for the fixed-point base-2
// logarithm. Guarded shifts (ilog2 and a saturating complement) keep this
// panic-free for any height, no matter how large.
func phase3Reward(height uint64) uint64 {
	adjusted := height - (Phase2End + 1)
	x := adjusted + 2
	if x == 2 {
		return KnotsPerKot
	}

	ilog := ilog2(x)
	val := uint64(ilog) << 16

	shiftAmount := uint32(62)
	if ilog <= 62 {
		shiftAmount = 62 - ilog
	} else {
		shiftAmount = 0
	}
	f := x << shiftAmount

	for i := 15; i >= 0; i-- {
		f128 := uint128Mul(f, f)
		f = uint128ShrToUint64(f128, 62)
		if f >= (1 << 63) {
			val |= 1 << uint(i)
			f >>= 1
		}
	}

	return (KnotsPerKot << 16) / val
}

// ilog2 returns floor(log2(x)) for x >= 1. x == 0 is not a valid caller
// state in this core and is never reached from BaseReward.
func ilog2(x uint64) uint32 {
	n := uint32(0)
	for x > 1 {
		x >>= 1
		n++
	}
	return n
}

// ilog10 returns floor(log10(x)) for x >= 1, computed purely by integer
// comparison to avoid both floating point and string allocation in the
// governance-weight math.
func ilog10(x uint64) uint32 {
	n := uint32(0)
	for x >= 10 {
		x /= 10
		n++
	}
	return n
}

// uint128 is a minimal 128-bit unsigned pair used only by phase3Reward's
// fixed-point squaring step, where a uint64*uint64 product can overflow
// 64 bits.
type uint128 struct {
	hi, lo uint64
}

func uint128Mul(a, b uint64) uint128 {
	const mask32 = 1<<32 - 1
	aLo, aHi := a&mask32, a>>32
	bLo, bHi := b&mask32, b>>32

	lo := aLo * bLo
	mid1 := aHi * bLo
	mid2 := aLo * bHi
	hi := aHi * bHi

	carry := (lo >> 32) + (mid1 & mask32) + (mid2 & mask32)
	lo = (lo & mask32) | (carry << 32)
	hi += mid1>>32 + mid2>>32 + carry>>32

	return uint128{hi: hi, lo: lo}
}

// uint128ShrToUint64 shifts a 128-bit value right by n bits (0 <= n <= 127)
// and returns the low 64 bits of the result, which is always all that
// phase3Reward needs since its shift amounts keep the result within 64
// bits.
func uint128ShrToUint64(v uint128, n uint) uint64 {
	if n == 0 {
		return v.lo
	}
	if n < 64 {
		return (v.lo >> n) | (v.hi << (64 - n))
	}
	return v.hi >> (n - 64)
}

// ReferralBonus computes the protocol-minted bonus paid to an active
// referrer when baseReward is credited to a miner they referred. No
// referrer, a referrer that has never mined, or a referrer gone stale
// beyond ReferralWindowBlocks all yield zero (see DESIGN.md for why this
// stays a three-input contract rather than gating on total blocks
// mined).
func ReferralBonus(baseReward uint64, hasReferrer bool, referrerLastMined, currentHeight uint64) uint64 {
	if !hasReferrer || referrerLastMined == 0 {
		return 0
	}
	if currentHeight > referrerLastMined && currentHeight-referrerLastMined > ReferralWindowBlocks {
		return 0
	}
	return (baseReward * ReferralBonusPercent) / 100
}

// GovernanceWeightBps computes a voter's weight in basis points from
// their contribution count (blocks mined, or miners referred, whichever
// is larger), capped at capBps since the cap is a governance-tunable
// parameter rather than fixed.
func GovernanceWeightBps(contributions uint64, capBps uint32) uint32 {
	var weight uint32
	if contributions == 0 {
		weight = 100
	} else {
		digits := ilog10(contributions) + 1
		weight = 100 + 100*(digits-1)
	}
	if weight > capBps {
		return capBps
	}
	return weight
}
