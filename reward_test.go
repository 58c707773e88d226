// Copyright 2019 cruzbit developers
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

package knotcoin

import "testing"

func TestPhase1Reward(t *testing.T) {
	if r := BaseReward(0); r != Phase1StartKnots {
		t.Fatalf("height 0: got %d, want %d", r, Phase1StartKnots)
	}
	mid := BaseReward(Phase1End / 2)
	if mid <= Phase1StartKnots || mid >= KnotsPerKot {
		t.Fatalf("midpoint reward %d not between phase bounds", mid)
	}
	if r := BaseReward(Phase1End); r > KnotsPerKot {
		t.Fatalf("phase1 end reward %d exceeds 1 KOT", r)
	}
}

func TestPhase1Monotonic(t *testing.T) {
	prev := BaseReward(0)
	for h := uint64(1000); h <= Phase1End; h += 1000 {
		r := BaseReward(h)
		if r < prev {
			t.Fatalf("reward decreased from %d to %d at height %d", prev, r, h)
		}
		prev = r
	}
}

func TestPhase2Constant(t *testing.T) {
	for _, h := range []uint64{Phase1End + 1, Phase1End + 100000, Phase2End} {
		if r := BaseReward(h); r != KnotsPerKot {
			t.Fatalf("height %d: got %d, want %d", h, r, KnotsPerKot)
		}
	}
}

func TestPhase3Continuity(t *testing.T) {
	if r := BaseReward(Phase2End + 1); r != KnotsPerKot {
		t.Fatalf("phase3 first block: got %d, want %d", r, KnotsPerKot)
	}
}

func TestPhase3Decay(t *testing.T) {
	prev := BaseReward(Phase2End + 1)
	for _, h := range []uint64{Phase2End + 1000, Phase2End + 100000, Phase2End + 10000000} {
		r := BaseReward(h)
		if r >= prev {
			t.Fatalf("reward did not decrease: height %d got %d, previous %d", h, r, prev)
		}
		if r == 0 {
			t.Fatalf("reward reached zero at height %d", h)
		}
		prev = r
	}
}

func TestPhase3NeverZero(t *testing.T) {
	for _, h := range []uint64{Phase2End + 1, 1 << 32, 1 << 48, 1<<63 - 1} {
		if r := BaseReward(h); r == 0 {
			t.Fatalf("reward reached zero at height %d", h)
		}
	}
}

func TestReferralBonus(t *testing.T) {
	if got := ReferralBonus(100_000_000, true, 1000, 2000); got != 5_000_000 {
		t.Fatalf("got %d, want 5000000", got)
	}
	if got := ReferralBonus(100_000_000, true, 1000, 5000); got != 0 {
		t.Fatalf("stale referrer: got %d, want 0", got)
	}
}

func TestReferralBonusNoReferrer(t *testing.T) {
	if got := ReferralBonus(100_000_000, false, 0, 2000); got != 0 {
		t.Fatalf("no referrer: got %d, want 0", got)
	}
}

func TestReferralBonusNeverMined(t *testing.T) {
	if got := ReferralBonus(100_000_000, true, 0, 1000); got != 0 {
		t.Fatalf("referrer with last_mined_height 0: got %d, want 0", got)
	}
}

func TestReferralBonusWindowBoundary(t *testing.T) {
	const base = 100_000_000
	referrerHeight := uint64(1000)
	if got := ReferralBonus(base, true, referrerHeight, referrerHeight+ReferralWindowBlocks); got != 5_000_000 {
		t.Fatalf("at window edge: got %d, want 5000000", got)
	}
	if got := ReferralBonus(base, true, referrerHeight, referrerHeight+ReferralWindowBlocks+1); got != 0 {
		t.Fatalf("one past window edge: got %d, want 0", got)
	}
}

func TestGovernanceWeightBps(t *testing.T) {
	cases := []struct {
		contrib uint64
		want    uint32
	}{
		{0, 100},
		{1, 100},
		{9, 100},
		{10, 200},
		{99, 200},
		{100, 300},
		{999, 300},
		{1000, 400},
		{1_000_000, 700},
	}
	for _, c := range cases {
		if got := GovernanceWeightBps(c.contrib, GovernanceCapMaxBps); got != c.want {
			t.Fatalf("contributions=%d: got %d, want %d", c.contrib, got, c.want)
		}
	}
}

func TestGovernanceWeightCapped(t *testing.T) {
	// digits=19 -> uncapped weight 1900 bps, well above the default cap.
	if got := GovernanceWeightBps(1_000_000_000_000_000_000, GovernanceCapDefaultBps); got != GovernanceCapDefaultBps {
		t.Fatalf("got %d, want cap %d", got, GovernanceCapDefaultBps)
	}
}
