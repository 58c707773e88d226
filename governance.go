package knotcoin

import "encoding/binary"

// EncodeGovernancePayload packs the parameter a vote targets into the
// 32-byte governance data field: key byte, big-endian value, and the
// remaining bytes zeroed. Every vote for the same (key, value) hashes to
// the same target, so independent voters converge on one Proposal.
func EncodeGovernancePayload(key ParamKey, value uint32) [GovernanceDataBytes]byte {
	var out [GovernanceDataBytes]byte
	out[0] = byte(key)
	binary.BigEndian.PutUint32(out[1:5], value)
	return out
}

// decodeGovernancePayload is EncodeGovernancePayload's inverse.
func decodeGovernancePayload(data [GovernanceDataBytes]byte) (ParamKey, uint32) {
	return ParamKey(data[0]), binary.BigEndian.Uint32(data[1:5])
}

// Proposal tracks the running tally for one governance target hash.
// Voters is keyed by address so a given voter can contribute to a
// proposal's weight at most once. ParamKey/ParamValue carry the actual
// change a passing vote enacts; they are fixed at proposal creation from
// the first vote's governance payload, since every vote that hashes to
// the same TargetHash necessarily carries identical payload bytes.
//
// This core exposes only the raw WeightBps tally here: whether that
// tally is enough to pass is not decided by Proposal itself, since the
// weight denominator is a basis-point scale with no fixed total (each
// voter's contribution is capped independently, not as a share of a
// known whole). The pass/fail call is made by whoever applies votes,
// against a configured threshold (see TunableParameters.GovernanceThresholdBps).
type Proposal struct {
	TargetHash       Hash
	WeightBps        uint64
	Voters           *AddressSet
	ParamKey         ParamKey
	ParamValue       uint32
	ActivationHeight uint64 // 0 until scheduled
}

// NewProposal returns an empty, unvoted proposal for target.
func NewProposal(target Hash) *Proposal {
	return &Proposal{TargetHash: target, Voters: NewAddressSet()}
}

// PendingVote is one (voter, target, payload) tuple queued during block
// application for post-loop aggregation.
type PendingVote struct {
	Voter      Address
	Target     Hash
	ParamKey   ParamKey
	ParamValue uint32
}

// ApplyVote records voter's weighted contribution to p, if voter has not
// already voted on p. It returns the proposal's new WeightBps tally;
// callers compare that against their own pass threshold.
func (p *Proposal) ApplyVote(voter Address, voterContributions uint64, capBps uint32) uint64 {
	if p.Voters.Contains(voter) {
		return p.WeightBps
	}
	p.Voters.Add(voter)
	weight := GovernanceWeightBps(voterContributions, capBps)
	p.WeightBps += uint64(weight)
	return p.WeightBps
}
