package knotcoin

import "testing"

func TestScratchpadDeterministic(t *testing.T) {
	prev := sum256([]byte("prev"))
	miner := Address{1, 2, 3}
	pad1 := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	pad2 := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	for i := range pad1.chunks {
		if pad1.chunks[i] != pad2.chunks[i] {
			t.Fatalf("scratchpad chunk %d differs between identical templates", i)
		}
	}
}

func TestScratchpadDiffersByMiner(t *testing.T) {
	prev := sum256([]byte("prev"))
	padA := NewScratchpad(prev, Address{1}, PoncScratchpadBytesMin)
	padB := NewScratchpad(prev, Address{2}, PoncScratchpadBytesMin)
	if padA.chunks[0] == padB.chunks[0] {
		t.Fatalf("different miners must produce different scratchpads")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	prev := sum256([]byte("prev"))
	miner := Address{9}
	prefix := make([]byte, BlockHeaderPrefixBytes)
	pad1 := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	pad2 := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	h1 := pad1.Evaluate(prefix, 42, PoncRoundsDefault)
	h2 := pad2.Evaluate(prefix, 42, PoncRoundsDefault)
	if h1 != h2 {
		t.Fatalf("PONC evaluation must be deterministic for identical inputs")
	}
}

func TestEvaluateDiffersByNonce(t *testing.T) {
	prev := sum256([]byte("prev"))
	miner := Address{9}
	prefix := make([]byte, BlockHeaderPrefixBytes)
	pad := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	h1 := pad.Evaluate(prefix, 1, PoncRoundsDefault)
	h2 := pad.Evaluate(prefix, 2, PoncRoundsDefault)
	if h1 == h2 {
		t.Fatalf("different nonces should (almost always) produce different hashes")
	}
}

func TestEvaluateAndCheckRejectsAboveTarget(t *testing.T) {
	prev := sum256([]byte("prev"))
	miner := Address{9}
	prefix := make([]byte, BlockHeaderPrefixBytes)
	pad := NewScratchpad(prev, miner, PoncScratchpadBytesMin)
	tightTarget := ZeroHash // impossible to satisfy
	_, ok := pad.EvaluateAndCheck(prefix, 1, PoncRoundsDefault, tightTarget)
	if ok {
		t.Fatalf("expected PoW check against the zero target to fail")
	}
}

func TestParametersValidate(t *testing.T) {
	p := DefaultParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("default parameters should validate: %v", err)
	}
	bad := p
	bad.ScratchpadBytes = PoncScratchpadBytesMin + 96 // chunk count no longer a power of two
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected non-power-of-two scratchpad size to fail validation")
	}
}
