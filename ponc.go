package knotcoin

import "encoding/binary"

// TunableParameters holds the governance-adjustable knobs read from the
// params column family at validation time. They are never hardcoded into
// the PoW evaluator so a passed proposal can move them without a code
// change.
type TunableParameters struct {
	ScratchpadBytes       uint32
	PoncRounds            uint32
	GovernanceCapBps      uint32
	BlockSizeCeiling      uint32
	GovernanceThresholdBps uint32
}

// DefaultParameters returns the params a fresh chain starts with.
func DefaultParameters() TunableParameters {
	return TunableParameters{
		ScratchpadBytes:        PoncScratchpadBytesDefault,
		PoncRounds:             PoncRoundsDefault,
		GovernanceCapBps:       GovernanceCapDefaultBps,
		BlockSizeCeiling:       BlockSizeCeilingBytesDefault,
		GovernanceThresholdBps: GovernanceThresholdDefaultBps,
	}
}

// Validate rejects parameter combinations the PoW engine cannot evaluate:
// non-power-of-two scratchpad chunk counts, or values outside the governed
// range.
func (p TunableParameters) Validate() error {
	if p.ScratchpadBytes < PoncScratchpadBytesMin || p.ScratchpadBytes > PoncScratchpadBytesMax {
		return newValidationErr(CodeBadPoW, -1, "scratchpad_bytes", ErrMalformedEncoding)
	}
	chunks := p.ScratchpadBytes / PoncChunkBytes
	if chunks == 0 || chunks&(chunks-1) != 0 {
		return newValidationErr(CodeBadPoW, -1, "scratchpad_bytes", ErrMalformedEncoding)
	}
	if p.PoncRounds < PoncRoundsMin || p.PoncRounds > PoncRoundsMax {
		return newValidationErr(CodeBadPoW, -1, "ponc_rounds", ErrMalformedEncoding)
	}
	if p.GovernanceCapBps < GovernanceCapMinBps || p.GovernanceCapBps > GovernanceCapMaxBps {
		return newValidationErr(CodeBadPoW, -1, "governance_cap_bps", ErrMalformedEncoding)
	}
	if p.GovernanceThresholdBps < GovernanceThresholdMinBps || p.GovernanceThresholdBps > GovernanceThresholdMaxBps {
		return newValidationErr(CodeBadPoW, -1, "governance_threshold_bps", ErrMalformedEncoding)
	}
	if p.BlockSizeCeiling < BlockSizeFloorBytes {
		return newValidationErr(CodeBadPoW, -1, "block_size_ceiling", ErrMalformedEncoding)
	}
	return nil
}

// ParamKey identifies one field of TunableParameters a passed proposal
// may move. ParamNone means the proposal carries no parameter change and
// exists purely as an on-chain signal vote.
type ParamKey byte

const (
	ParamNone ParamKey = iota
	ParamScratchpadBytes
	ParamPoncRounds
	ParamGovernanceCapBps
	ParamBlockSizeCeiling
	ParamGovernanceThresholdBps
)

// WithParam returns a copy of p with key set to value, validated against
// the same ranges Validate checks. An unrecognized key is a no-op copy.
func (p TunableParameters) WithParam(key ParamKey, value uint32) (TunableParameters, error) {
	out := p
	switch key {
	case ParamScratchpadBytes:
		out.ScratchpadBytes = value
	case ParamPoncRounds:
		out.PoncRounds = value
	case ParamGovernanceCapBps:
		out.GovernanceCapBps = value
	case ParamBlockSizeCeiling:
		out.BlockSizeCeiling = value
	case ParamGovernanceThresholdBps:
		out.GovernanceThresholdBps = value
	default:
		return out, nil
	}
	if err := out.Validate(); err != nil {
		return p, err
	}
	return out, nil
}

// Scratchpad is the per-template memory buffer PONC reads pseudo-randomly
// during evaluation. It is rebuilt only when (parent, miner) changes;
// callers across many nonce attempts against the same template reuse one
// instance.
type Scratchpad struct {
	chunks    [][HashBytes]byte
	chunkMask uint32
}

// NewScratchpad deterministically initializes a scratchpad of the given
// byte size for the template (parentHash, minerAddress).
func NewScratchpad(parentHash Hash, miner Address, scratchpadBytes uint32) *Scratchpad {
	n := scratchpadBytes / PoncChunkBytes
	seed := sum256(parentHash[:], miner[:])
	chunks := make([][HashBytes]byte, n)
	for i := uint32(0); i < n; i++ {
		chunks[i] = sum256(seed[:], le64(uint64(i)))
	}
	return &Scratchpad{chunks: chunks, chunkMask: n - 1}
}

// read returns a reference to the 32-byte chunk at the masked index
// derived from the low 32 bits of state, little-endian.
func (s *Scratchpad) read(state Hash) []byte {
	idx := binary.LittleEndian.Uint32(state[0:4]) & s.chunkMask
	chunk := s.chunks[idx]
	return chunk[:]
}

// Evaluate runs the PONC mixing function for one candidate nonce against
// headerPrefix (exactly BlockHeaderPrefixBytes bytes) and returns the
// final 32-byte hash.
func (s *Scratchpad) Evaluate(headerPrefix []byte, nonce uint64, rounds uint32) Hash {
	state := sum256(headerPrefix, le64(nonce))
	for i := uint32(0); i < rounds; i++ {
		state = sum256(state[:], s.read(state))
	}
	return sum256(state[:])
}

// EvaluateAndCheck evaluates the PoW for nonce and reports whether the
// resulting hash satisfies hash <= target, returning the hash either way
// so callers can use it as the block hash on success.
func (s *Scratchpad) EvaluateAndCheck(headerPrefix []byte, nonce uint64, rounds uint32, target Hash) (Hash, bool) {
	hash := s.Evaluate(headerPrefix, nonce, rounds)
	return hash, hash.LessOrEqual(target)
}
