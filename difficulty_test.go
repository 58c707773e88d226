package knotcoin

import "testing"

func targetWithLowByte(v byte) Hash {
	var h Hash
	h[31] = v
	return h
}

func TestNextTargetRetarget(t *testing.T) {
	target := targetWithLowByte(100)
	cases := []struct {
		actualSecs uint64
		want       byte
	}{
		{3600, 100},
		{1800, 50},
		{7200, 200},
		{10, 25}, // clamped to the 900s floor: 100*900/3600 = 25
	}
	for _, c := range cases {
		got := NextTarget(target, c.actualSecs)
		if got[31] != c.want {
			t.Fatalf("actualSecs=%d: got [31]=%d, want %d", c.actualSecs, got[31], c.want)
		}
	}
}

func TestNextTargetClampCeiling(t *testing.T) {
	target := targetWithLowByte(100)
	got := NextTarget(target, 20000) // clamped to 14400s (4x ceiling)
	if got[31] != 144 {
		t.Fatalf("got [31]=%d, want 144", got[31])
	}
}

func TestNextTargetNeverZero(t *testing.T) {
	target := targetWithLowByte(1)
	got := NextTarget(target, 1)
	if got.IsZero() {
		t.Fatalf("target must never retarget to zero")
	}
}

func TestNextTargetSymmetry(t *testing.T) {
	target := targetWithLowByte(100)
	doubled := NextTarget(target, 7200)
	halved := NextTarget(target, 1800)
	if doubled[31] <= target[31] {
		t.Fatalf("doubling elapsed time should raise the target")
	}
	if halved[31] >= target[31] {
		t.Fatalf("halving elapsed time should lower the target")
	}
}
