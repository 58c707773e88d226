package knotcoin

import (
	"encoding/binary"
	"testing"
)

// mineValidNonce brute-forces a nonce satisfying the PoW check against an
// easy target, for use only as test scaffolding — production mining
// loops live in a miner package outside this core.
func mineValidNonce(t *testing.T, header *BlockHeader, params TunableParameters) uint64 {
	t.Helper()
	pad := NewScratchpad(header.PrevHash, header.MinerAddress, params.ScratchpadBytes)
	for nonce := uint64(0); nonce < 100000; nonce++ {
		if _, ok := pad.EvaluateAndCheck(header.SerializePrefix(), nonce, params.PoncRounds, header.Target); ok {
			return nonce
		}
	}
	t.Fatalf("failed to mine a valid nonce against an easy target")
	return 0
}

func newTestProcessor(t *testing.T) (*Processor, *Store) {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewProcessor(store), store
}

// fakeHash derives a deterministic, distinguishable-from-zero hash for
// scaffolding blocks that back-fill chain history without mining.
func fakeHash(h uint32) Hash {
	var out Hash
	binary.BigEndian.PutUint32(out[:4], h)
	out[31] = 0xAA
	return out
}

// seedFakeChain writes height..toHeight directly into the store (block,
// height index, and tip), bypassing AcceptBlock entirely. It lets tests
// put the processor in front of chain history far deeper than mining it
// for real would be worth, while the block actually under test still
// goes through the full AcceptBlock path.
func seedFakeChain(t *testing.T, store *Store, fromHeight, toHeight uint32, target Hash, timestampAt func(uint32) uint32) Hash {
	t.Helper()
	batch := NewCommitBatch()
	var tipHash Hash
	for h := fromHeight; h <= toHeight; h++ {
		hash := fakeHash(h)
		coinbase := &Transaction{Sender: ZeroAddress, Recipient: Address{0xFE}}
		header := &BlockHeader{Version: 1, Height: h, Timestamp: timestampAt(h), Target: target}
		block := &Block{Header: header, Txs: []*Transaction{coinbase}}
		header.MerkleRoot = block.ComputeMerkleRoot()
		batch.PutBlock(hash, block)
		batch.PutHashAtHeight(h, hash)
		tipHash = hash
	}
	batch.PutTip(&Tip{Hash: tipHash, Height: toHeight, AccumulatedWork: target})
	if err := store.Commit(batch); err != nil {
		t.Fatalf("seedFakeChain: %v", err)
	}
	return tipHash
}

func seedAccount(t *testing.T, store *Store, addr Address, acc *Account) {
	t.Helper()
	acc.PrivacyCode = DerivePrivacyCode(addr)
	batch := NewCommitBatch()
	batch.PutAccount(addr, acc)
	if err := store.Commit(batch); err != nil {
		t.Fatalf("seedAccount: %v", err)
	}
}

func TestAcceptGenesisBlock(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{1}

	block := Genesis(miner, 1771545600, GenesisTarget)
	block.Header.Nonce = mineValidNonce(t, block.Header, params)

	applied, err := proc.AcceptBlock(block, 1771545600+10)
	if err != nil {
		t.Fatalf("AcceptBlock: %v", err)
	}
	if applied.Height != 0 {
		t.Fatalf("got height %d, want 0", applied.Height)
	}

	acc, err := store.GetAccount(miner)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	wantReward := BaseReward(0)
	if acc.Balance != wantReward {
		t.Fatalf("miner balance %d, want %d", acc.Balance, wantReward)
	}
	if acc.BlocksMined != 1 {
		t.Fatalf("blocks mined %d, want 1", acc.BlocksMined)
	}
}

func TestAcceptBlockRejectsBadParent(t *testing.T) {
	proc, _ := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{1}

	genesis := Genesis(miner, 1771545600, GenesisTarget)
	genesis.Header.Nonce = mineValidNonce(t, genesis.Header, params)
	if _, err := proc.AcceptBlock(genesis, 1771545600+10); err != nil {
		t.Fatalf("AcceptBlock genesis: %v", err)
	}

	bogus := Genesis(miner, 1771545700, GenesisTarget)
	bogus.Header.Height = 1
	bogus.Header.Nonce = mineValidNonce(t, bogus.Header, params)
	if _, err := proc.AcceptBlock(bogus, 1771545700+10); err == nil {
		t.Fatalf("expected rejection of a block whose previous hash is not the tip")
	}
}

func TestAcceptBlockRejectsKnownAncestorAsReorgTooDeep(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{1}

	genesis := Genesis(miner, 1771545600, GenesisTarget)
	genesis.Header.Nonce = mineValidNonce(t, genesis.Header, params)
	if _, err := proc.AcceptBlock(genesis, 1771545600+10); err != nil {
		t.Fatalf("AcceptBlock genesis: %v", err)
	}
	genesisHash := genesis.Header.PowHash(params)

	height1 := &BlockHeader{
		Version: 1, PrevHash: genesisHash, Height: 1,
		Timestamp: 1771545660, Target: GenesisTarget, MinerAddress: miner,
	}
	coinbase1 := &Transaction{Sender: ZeroAddress, Recipient: miner}
	block1 := &Block{Header: height1, Txs: []*Transaction{coinbase1}}
	height1.MerkleRoot = block1.ComputeMerkleRoot()
	height1.Nonce = mineValidNonce(t, height1, params)
	if _, err := proc.AcceptBlock(block1, 1771545660+10); err != nil {
		t.Fatalf("AcceptBlock height 1: %v", err)
	}

	// A second height-1 competitor extending genesis is a known, non-tip
	// ancestor once height 1 is already the tip, not an unknown parent.
	rival := &BlockHeader{
		Version: 1, PrevHash: genesisHash, Height: 1,
		Timestamp: 1771545661, Target: GenesisTarget, MinerAddress: miner,
	}
	coinbaseRival := &Transaction{Sender: ZeroAddress, Recipient: miner}
	blockRival := &Block{Header: rival, Txs: []*Transaction{coinbaseRival}}
	rival.MerkleRoot = blockRival.ComputeMerkleRoot()
	rival.Nonce = mineValidNonce(t, rival, params)

	_, err := proc.AcceptBlock(blockRival, 1771545661+10)
	if err == nil {
		t.Fatalf("expected rejection of a block extending a non-tip ancestor")
	}
	verr, ok := err.(*ValidationError)
	if !ok || verr.Code != CodeReorgTooDeep {
		t.Fatalf("got %v, want CodeReorgTooDeep", err)
	}

	if _, err := store.GetBlock(genesisHash); err != nil {
		t.Fatalf("GetBlock genesis: %v", err)
	}
}

func TestAcceptBlockRejectsBadPoW(t *testing.T) {
	proc, _ := newTestProcessor(t)
	miner := Address{1}

	block := Genesis(miner, 1771545600, GenesisTarget)
	block.Header.Target = ZeroHash // unsatisfiable
	block.Header.Nonce = 0

	if _, err := proc.AcceptBlock(block, 1771545600+10); err == nil {
		t.Fatalf("expected BadPoW rejection")
	}
}

func TestAcceptBlockRejectsFutureTimestamp(t *testing.T) {
	proc, _ := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{1}

	block := Genesis(miner, 1771545600, GenesisTarget)
	block.Header.Nonce = mineValidNonce(t, block.Header, params)

	if _, err := proc.AcceptBlock(block, 1771545600-MaxFutureSeconds-10); err == nil {
		t.Fatalf("expected rejection of a block whose timestamp is too far in the future")
	}
}

// TestAcceptBlockPaysReferralBonusWithinWindow covers scenario S3: a
// referred miner mines while their referrer is still within the
// referral window, so the referrer is paid the bonus on top of the
// miner's own reward.
func TestAcceptBlockPaysReferralBonusWithinWindow(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()

	referrer := Address{0xA1}
	miner := Address{0xB1}
	seedAccount(t, store, referrer, &Account{LastMinedHeight: 10})
	seedAccount(t, store, miner, &Account{HasReferrer: true, Referrer: referrer})

	const height = 200
	tipHash := seedFakeChain(t, store, height-11, height-1, GenesisTarget, func(h uint32) uint32 {
		return 1700000000 + h*TargetBlockSpacingSecs
	})

	header := &BlockHeader{
		Version: 1, PrevHash: tipHash, Height: height,
		Timestamp: 1700000000 + (height+1)*TargetBlockSpacingSecs,
		Target:    GenesisTarget, MinerAddress: miner,
	}
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: miner}
	block := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = block.ComputeMerkleRoot()
	header.Nonce = mineValidNonce(t, header, params)

	applied, err := proc.AcceptBlock(block, header.Timestamp+10)
	if err != nil {
		t.Fatalf("AcceptBlock: %v", err)
	}

	base := BaseReward(height)
	wantBonus := (base * ReferralBonusPercent) / 100
	if applied.ReferralBonus != wantBonus {
		t.Fatalf("referral bonus %d, want %d", applied.ReferralBonus, wantBonus)
	}

	minerAcc, err := store.GetAccount(miner)
	if err != nil {
		t.Fatalf("GetAccount miner: %v", err)
	}
	if minerAcc.Balance != base {
		t.Fatalf("miner balance %d, want %d", minerAcc.Balance, base)
	}

	referrerAcc, err := store.GetAccount(referrer)
	if err != nil {
		t.Fatalf("GetAccount referrer: %v", err)
	}
	if referrerAcc.Balance != wantBonus {
		t.Fatalf("referrer balance %d, want %d", referrerAcc.Balance, wantBonus)
	}
	if referrerAcc.TotalReferralBonus != wantBonus {
		t.Fatalf("referrer total bonus %d, want %d", referrerAcc.TotalReferralBonus, wantBonus)
	}
}

// TestAcceptBlockSkipsReferralBonusAfterWindowExpiry covers scenario S4:
// once the referrer's last-mined height falls more than
// ReferralWindowBlocks behind the current height, no bonus is paid.
func TestAcceptBlockSkipsReferralBonusAfterWindowExpiry(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()

	const referrerLastMined = 10
	const height = referrerLastMined + ReferralWindowBlocks + 1

	referrer := Address{0xA2}
	miner := Address{0xB2}
	seedAccount(t, store, referrer, &Account{LastMinedHeight: referrerLastMined})
	seedAccount(t, store, miner, &Account{HasReferrer: true, Referrer: referrer})

	tipHash := seedFakeChain(t, store, height-11, height-1, GenesisTarget, func(h uint32) uint32 {
		return 1700000000 + h*TargetBlockSpacingSecs
	})

	header := &BlockHeader{
		Version: 1, PrevHash: tipHash, Height: height,
		Timestamp: 1700000000 + (height+1)*TargetBlockSpacingSecs,
		Target:    GenesisTarget, MinerAddress: miner,
	}
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: miner}
	block := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = block.ComputeMerkleRoot()
	header.Nonce = mineValidNonce(t, header, params)

	applied, err := proc.AcceptBlock(block, header.Timestamp+10)
	if err != nil {
		t.Fatalf("AcceptBlock: %v", err)
	}
	if applied.ReferralBonus != 0 {
		t.Fatalf("referral bonus %d, want 0 past the window", applied.ReferralBonus)
	}

	referrerAcc, err := store.GetAccount(referrer)
	if err != nil {
		t.Fatalf("GetAccount referrer: %v", err)
	}
	if referrerAcc.Balance != 0 {
		t.Fatalf("referrer balance %d, want 0", referrerAcc.Balance)
	}
}

// TestAcceptBlockRetargetsAfterFullWindow covers scenario S7: a full
// retarget window whose blocks arrived far faster than the target
// spacing clamps the next target to one quarter of the previous one.
func TestAcceptBlockRetargetsAfterFullWindow(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{0xC1}

	const windowStart = 0
	const windowEnd = RetargetIntervalBlocks - 1 // 59
	tipHash := seedFakeChain(t, store, windowStart, windowEnd, GenesisTarget, func(h uint32) uint32 {
		return 1700000000 + h // 1 second apart, far under the 60s target spacing
	})

	startTimestamp := uint32(1700000000 + windowStart)
	tipTimestamp := uint32(1700000000 + windowEnd)
	wantTarget := NextTarget(GenesisTarget, uint64(tipTimestamp-startTimestamp))

	header := &BlockHeader{
		Version: 1, PrevHash: tipHash, Height: RetargetIntervalBlocks, // 60
		Timestamp: tipTimestamp + 120, Target: wantTarget, MinerAddress: miner,
	}
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: miner}
	block := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = block.ComputeMerkleRoot()
	header.Nonce = mineValidNonce(t, header, params)

	applied, err := proc.AcceptBlock(block, header.Timestamp+10)
	if err != nil {
		t.Fatalf("AcceptBlock: %v", err)
	}
	if applied.Height != RetargetIntervalBlocks {
		t.Fatalf("got height %d, want %d", applied.Height, RetargetIntervalBlocks)
	}

	// with the window run 4x faster than expected, the clamp bottoms out
	// at expected/4, so the new target is one quarter of the old one.
	quarter := NextTarget(GenesisTarget, RetargetExpectedSecs/4)
	if wantTarget != quarter {
		t.Fatalf("retarget clamp not at floor: got %x, want %x", wantTarget, quarter)
	}

	// a block proposing the unretargeted (stale) target is now rejected.
	stale := &BlockHeader{
		Version: 1, PrevHash: tipHash, Height: RetargetIntervalBlocks,
		Timestamp: tipTimestamp + 120, Target: GenesisTarget, MinerAddress: miner,
	}
	staleBlock := &Block{Header: stale, Txs: []*Transaction{{Sender: ZeroAddress, Recipient: miner}}}
	stale.MerkleRoot = staleBlock.ComputeMerkleRoot()
	stale.Nonce = mineValidNonce(t, stale, params)
	if _, err := proc.AcceptBlock(staleBlock, stale.Timestamp+10); err == nil {
		t.Fatalf("expected rejection of a block carrying the pre-retarget target")
	}
}

// TestAcceptBlockRejectsTimestampEqualToMedian covers scenario S9: a
// timestamp exactly equal to the median of the previous window is
// rejected, not just a timestamp that falls behind it.
func TestAcceptBlockRejectsTimestampEqualToMedian(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()
	miner := Address{0xD1}

	const windowEnd = NumBlocksForMedianTimePast - 1 // 10, giving 11 blocks: heights 0..10
	tipHash := seedFakeChain(t, store, 0, windowEnd, GenesisTarget, func(h uint32) uint32 {
		return 1700000000 + h*TargetBlockSpacingSecs
	})

	medianTimestamp := uint32(1700000000 + (windowEnd/2)*TargetBlockSpacingSecs)

	header := &BlockHeader{
		Version: 1, PrevHash: tipHash, Height: windowEnd + 1,
		Timestamp: medianTimestamp, Target: GenesisTarget, MinerAddress: miner,
	}
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: miner}
	block := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = block.ComputeMerkleRoot()
	header.Nonce = mineValidNonce(t, header, params)

	_, err := proc.AcceptBlock(block, medianTimestamp+10)
	if err == nil {
		t.Fatalf("expected MTPViolation for a timestamp exactly at the median")
	}
	verr, ok := err.(*ValidationError)
	if !ok || verr.Code != CodeMTPViolation {
		t.Fatalf("got %v, want CodeMTPViolation", err)
	}
}

// TestAcceptBlockTalliesGovernanceVotesWithoutDoubleCounting covers
// scenario S10: two voters with distinct weights tally to their sum, and
// a repeat vote from an already-counted voter leaves the tally
// unchanged.
func TestAcceptBlockTalliesGovernanceVotesWithoutDoubleCounting(t *testing.T) {
	proc, store := newTestProcessor(t)
	params := DefaultParameters()
	genesisMiner := Address{0xE0}

	genesis := Genesis(genesisMiner, 1700000000, GenesisTarget)
	genesis.Header.Nonce = mineValidNonce(t, genesis.Header, params)
	if _, err := proc.AcceptBlock(genesis, 1700000010); err != nil {
		t.Fatalf("AcceptBlock genesis: %v", err)
	}
	tipHash := genesis.Header.PowHash(params)

	pubA, privA, _ := PQGenerateKeyPair()
	addrA := DeriveAddress(pubA)
	pubB, privB, _ := PQGenerateKeyPair()
	addrB := DeriveAddress(pubB)

	// contributions of 1500 and 150000 map to weights of 400bps and
	// 600bps under GovernanceWeightBps's digit-count scale.
	seedAccount(t, store, addrA, &Account{Balance: 1000, BlocksMined: 1500})
	seedAccount(t, store, addrB, &Account{Balance: 1000, BlocksMined: 150000})

	payload := EncodeGovernancePayload(ParamBlockSizeCeiling, BlockSizeCeilingBytesDefault)
	target := sum256(payload[:])

	makeVoteBlock := func(height uint32, timestamp uint32, prevHash Hash, voter Address, pub []byte, sign func([]byte) []byte, nonce uint64) *Block {
		tx := &Transaction{
			Sender: voter, Recipient: voter, Amount: 0, Fee: MinFeeKnots, Nonce: nonce,
			HasGovernance: true, GovernanceData: payload, PubKey: pub,
		}
		sh := tx.SigningHash()
		tx.Signature = sign(sh[:])

		coinbase := &Transaction{Sender: ZeroAddress, Recipient: genesisMiner}
		header := &BlockHeader{
			Version: 1, PrevHash: prevHash, Height: height,
			Timestamp: timestamp, Target: GenesisTarget, MinerAddress: genesisMiner,
		}
		block := &Block{Header: header, Txs: []*Transaction{coinbase, tx}}
		header.MerkleRoot = block.ComputeMerkleRoot()
		header.Nonce = mineValidNonce(t, header, params)
		return block
	}

	signA := func(msg []byte) []byte { return PQSign(privA, msg) }
	signB := func(msg []byte) []byte { return PQSign(privB, msg) }

	blockA := makeVoteBlock(1, 1700000060, tipHash, addrA, pubA, signA, 0)
	if _, err := proc.AcceptBlock(blockA, 1700000070); err != nil {
		t.Fatalf("AcceptBlock vote A: %v", err)
	}
	tipHash = blockA.Header.PowHash(params)

	prop, err := store.GetProposal(target)
	if err != nil {
		t.Fatalf("GetProposal after first vote: %v", err)
	}
	if prop.WeightBps != 400 {
		t.Fatalf("weight after vote A = %d, want 400", prop.WeightBps)
	}

	blockB := makeVoteBlock(2, 1700000120, tipHash, addrB, pubB, signB, 0)
	if _, err := proc.AcceptBlock(blockB, 1700000130); err != nil {
		t.Fatalf("AcceptBlock vote B: %v", err)
	}
	tipHash = blockB.Header.PowHash(params)

	prop, err = store.GetProposal(target)
	if err != nil {
		t.Fatalf("GetProposal after second vote: %v", err)
	}
	if prop.WeightBps != 1000 {
		t.Fatalf("weight after vote B = %d, want 1000", prop.WeightBps)
	}

	blockARepeat := makeVoteBlock(3, 1700000180, tipHash, addrA, pubA, signA, 1)
	if _, err := proc.AcceptBlock(blockARepeat, 1700000190); err != nil {
		t.Fatalf("AcceptBlock repeat vote A: %v", err)
	}

	prop, err = store.GetProposal(target)
	if err != nil {
		t.Fatalf("GetProposal after repeat vote: %v", err)
	}
	if prop.WeightBps != 1000 {
		t.Fatalf("weight after repeat vote A = %d, want unchanged 1000", prop.WeightBps)
	}
}
