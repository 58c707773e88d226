// Copyright 2019 cruzbit developers
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

package knotcoin

// the below values affect ledger consensus.

const KnotsPerKot = 100000000

// Emission phase boundaries, in block height. Phase 1 is a linear ramp,
// Phase 2 is flat, Phase 3 decays by a fixed-point base-2 logarithm.
const Phase1End = 262800
const Phase2End = 525600

// Phase1StartKnots and Phase1DeltaKnots parameterize the Phase 1 ramp:
// reward = Phase1StartKnots + Phase1DeltaKnots*height/Phase1End.
const Phase1StartKnots = KnotsPerKot / 10
const Phase1DeltaKnots = KnotsPerKot - Phase1StartKnots

// ReferralWindowBlocks is how recently a referrer must have mined to remain
// eligible to receive the referral bonus (~48h at 60s blocks).
const ReferralWindowBlocks = 2880

// ReferralBonusPercent is the protocol-minted bonus paid to an active
// referrer when their referred address mines a block.
const ReferralBonusPercent = 5

// RetargetIntervalBlocks is how often (in blocks) the PoW target is
// recomputed against the target 60s block spacing.
const RetargetIntervalBlocks = 60
const TargetBlockSpacingSecs = 60
const RetargetExpectedSecs = RetargetIntervalBlocks * TargetBlockSpacingSecs

// NumBlocksForMedianTimePast is the window used to reject blocks whose
// timestamp does not strictly exceed the median of recent block times.
const NumBlocksForMedianTimePast = 11

// MaxFutureSeconds bounds how far into the future a block's timestamp may
// claim to be, relative to the validating node's clock.
const MaxFutureSeconds = 2 * 60 * 60

// the below values are governance tunables: defaults and the ranges a
// passed proposal may move them within.

const GovernanceCapDefaultBps = 1000
const GovernanceCapMinBps = 500
const GovernanceCapMaxBps = 2000

const PoncRoundsDefault = 512
const PoncRoundsMin = 256
const PoncRoundsMax = 2048

// PoncScratchpadBytesDefault is 2 MiB; chunk counts are always powers of
// two so scratchpad index derivation is a bit-mask, never a modulo.
const PoncScratchpadBytesDefault = 2 * 1024 * 1024
const PoncScratchpadBytesMin = 2 * 1024 * 1024
const PoncScratchpadBytesMax = 256 * 1024 * 1024
const PoncChunkBytes = 32

// GovernanceActivationDelayBlocks is how long a passed proposal waits
// before its parameter value is actually written into the params column
// family.
const GovernanceActivationDelayBlocks = 1000

// GovernanceThresholdDefaultBps is the absolute weighted-vote tally (in
// basis points) a proposal must accumulate to pass. It is itself a
// tunable, not a constant baked into the tally logic, so a chain can
// raise or lower its own bar for change without a code fork.
const GovernanceThresholdDefaultBps = 5100
const GovernanceThresholdMinBps = 1000
const GovernanceThresholdMaxBps = 9000

// MinFeeKnots is the mempool's minimum fee floor.
const MinFeeKnots = 1

// Block size ceiling (tunable, default shown here) and the floor below
// which a mined template will not intentionally be shrunk.
const BlockSizeCeilingBytesDefault = 2 * 1024 * 1024
const BlockSizeFloorBytes = 50 * 1024

// MaxReorgDepth is fixed at the hard-cap option rather than maintaining
// an undo log. Only a direct extension of the current tip is ever
// applied.
const MaxReorgDepth = 0

// Address and hash sizes.
const AddressBytes = 32
const HashBytes = 32

// the next three values only affect mempool policy and do not affect
// ledger consensus.

const MempoolMaxEntries = 20000
const MempoolRBFMinBumpPercent = 10
const MempoolRBFMinAbsoluteBump = 1

// BlockHeaderPrefixBytes is the pre-nonce portion of the header; the full
// header is this plus an 8-byte little-endian nonce.
const BlockHeaderPrefixBytes = 140
const BlockHeaderBytes = BlockHeaderPrefixBytes + 8

// MaxTransactionsPerBlock bounds block templates independent of the byte
// ceiling; kept generous since the byte ceiling binds first in practice.
const MaxTransactionsPerBlock = 1<<31 - 1
