package knotcoin

import (
	"fmt"
)

// Processor is the block validator/applier: the single entry point that
// checks a candidate block against consensus rules and, on acceptance,
// atomically mutates chain state. All commits are serialized behind
// commitMu, so there is exactly one writer at a time regardless of how
// many readers are concurrently querying the store.
type Processor struct {
	store    *Store
	commitMu chan struct{} // binary semaphore; held for the duration of AcceptBlock's commit
}

// NewProcessor wraps store with the validator/applier.
func NewProcessor(store *Store) *Processor {
	p := &Processor{store: store, commitMu: make(chan struct{}, 1)}
	p.commitMu <- struct{}{}
	return p
}

func (p *Processor) lock()   { <-p.commitMu }
func (p *Processor) unlock() { p.commitMu <- struct{}{} }

// AppliedBlock summarizes a successfully accepted block, for callers that
// need the new tip and the amount newly minted.
type AppliedBlock struct {
	Hash               Hash
	Height             uint32
	MintedKnots        uint64
	ReferralBonus      uint64
	ActivatedProposals []Hash // proposals whose parameter change just landed in params
}

// shadowAccounts buffers per-address deltas during the transaction loop
// so nothing is written to the store until the whole block validates.
type shadowAccounts struct {
	store *Store
	cache map[Address]*Account
}

func newShadowAccounts(store *Store) *shadowAccounts {
	return &shadowAccounts{store: store, cache: make(map[Address]*Account)}
}

func (s *shadowAccounts) get(addr Address) (*Account, error) {
	if acc, ok := s.cache[addr]; ok {
		return acc, nil
	}
	acc, err := s.store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	s.cache[addr] = acc
	return acc, nil
}

// AcceptBlock validates block against the current tip and, if valid,
// commits it atomically. It never mutates the store on any rejection
// path.
func (p *Processor) AcceptBlock(block *Block, now uint32) (*AppliedBlock, error) {
	p.lock()
	defer p.unlock()

	tip, err := p.store.GetTip()
	if err != nil {
		return nil, err
	}
	params, err := p.store.GetParams()
	if err != nil {
		return nil, err
	}

	if err := p.preChecks(block, tip, params, now); err != nil {
		return nil, err
	}

	shadow := newShadowAccounts(p.store)
	feeSink := uint64(0)
	var pendingVotes []PendingVote

	for i := 1; i < len(block.Txs); i++ {
		tx := block.Txs[i]
		if err := p.applyTransaction(tx, i, shadow, &feeSink, &pendingVotes); err != nil {
			return nil, err
		}
	}

	minerAddr := block.Header.MinerAddress
	miner, err := shadow.get(minerAddr)
	if err != nil {
		return nil, err
	}
	baseReward := BaseReward(uint64(block.Header.Height))

	var referrer *Account
	var referrerAddr Address
	if miner.HasReferrer {
		referrerAddr = miner.Referrer
		referrer, err = shadow.get(referrerAddr)
		if err != nil {
			return nil, err
		}
	}
	var referrerLastMined uint64
	if referrer != nil {
		referrerLastMined = referrer.LastMinedHeight
	}
	bonus := ReferralBonus(baseReward, miner.HasReferrer, referrerLastMined, uint64(block.Header.Height))

	minted := baseReward + feeSink
	if minted < baseReward {
		return nil, newValidationErr(CodeAmountOverflow, -1, "minted", fmt.Errorf("reward plus fee sink overflow"))
	}
	newMinerBalance := miner.Balance + minted
	if newMinerBalance < miner.Balance {
		return nil, newValidationErr(CodeAmountOverflow, -1, "balance", fmt.Errorf("miner credit overflow"))
	}
	miner.Balance = newMinerBalance
	miner.LastMinedHeight = uint64(block.Header.Height)
	miner.BlocksMined++
	if referrer != nil {
		newReferrerBalance := referrer.Balance + bonus
		if newReferrerBalance < referrer.Balance {
			return nil, newValidationErr(CodeAmountOverflow, -1, "balance", fmt.Errorf("referrer credit overflow"))
		}
		referrer.Balance = newReferrerBalance
		referrer.TotalReferralBonus += bonus
	}

	batch := NewCommitBatch()

	activated, err := p.aggregateGovernance(pendingVotes, shadow, params, block.Header.Height, batch)
	if err != nil {
		return nil, err
	}

	newTip := &Tip{
		Hash:            block.Header.PowHash(params),
		Height:          block.Header.Height,
		AccumulatedWork: accumulateWork(tip.AccumulatedWork, block.Header.Target),
	}

	batch.PutBlock(newTip.Hash, block)
	batch.PutHashAtHeight(newTip.Height, newTip.Hash)
	batch.PutTip(newTip)
	for addr, acc := range shadow.cache {
		batch.PutAccount(addr, acc)
		batch.PutReferralIndex(acc.PrivacyCode, addr)
	}

	if err := p.store.Commit(batch); err != nil {
		return nil, err
	}

	activatedTargets := make([]Hash, len(activated))
	for i, prop := range activated {
		activatedTargets[i] = prop.TargetHash
	}

	return &AppliedBlock{
		Hash:               newTip.Hash,
		Height:             newTip.Height,
		MintedKnots:        baseReward + bonus,
		ReferralBonus:      bonus,
		ActivatedProposals: activatedTargets,
	}, nil
}

func (p *Processor) preChecks(block *Block, tip *Tip, params TunableParameters, now uint32) error {
	if block.Header == nil || len(block.Txs) == 0 {
		return newValidationErr(CodeBadCoinbase, -1, "txs", fmt.Errorf("no coinbase"))
	}
	coinbase := block.Txs[0]
	if !coinbase.IsCoinbase() {
		return newValidationErr(CodeBadCoinbase, 0, "sender", fmt.Errorf("first tx is not coinbase"))
	}
	for i := 1; i < len(block.Txs); i++ {
		if block.Txs[i].IsCoinbase() {
			return newValidationErr(CodeBadCoinbase, i, "sender", fmt.Errorf("zero-address sender outside coinbase"))
		}
	}

	encoded := encodeBlock(block)
	if uint32(len(encoded)) > params.BlockSizeCeiling {
		return newValidationErr(CodeBlockTooLarge, -1, "size", fmt.Errorf("block exceeds ceiling"))
	}

	if block.Header.Timestamp >= now+MaxFutureSeconds {
		return newValidationErr(CodeBadTimestamp, -1, "timestamp", fmt.Errorf("timestamp too far in future"))
	}

	if tip.Height > 0 || !tip.Hash.IsZero() {
		if block.Header.PrevHash != tip.Hash {
			ancestor, err := p.store.GetBlock(block.Header.PrevHash)
			if err != nil {
				return err
			}
			if ancestor != nil {
				return newValidationErr(CodeReorgTooDeep, -1, "previous_hash", fmt.Errorf("parent is a known non-tip ancestor"))
			}
			return newValidationErr(CodeBadParent, -1, "previous_hash", fmt.Errorf("does not extend tip"))
		}
		if block.Header.Height != tip.Height+1 {
			return newValidationErr(CodeBadParent, -1, "height", fmt.Errorf("height does not follow tip"))
		}
	}

	mtp, err := p.medianTimePast(tip.Height)
	if err != nil {
		return err
	}
	if mtp != 0 && block.Header.Timestamp <= mtp {
		return newValidationErr(CodeMTPViolation, -1, "timestamp", fmt.Errorf("timestamp does not exceed median time past"))
	}

	expectedTarget, err := p.expectedTarget(tip, params)
	if err != nil {
		return err
	}
	if block.Header.Target != expectedTarget {
		return newValidationErr(CodeBadTarget, -1, "target", fmt.Errorf("target does not match difficulty schedule"))
	}

	pad := NewScratchpad(block.Header.PrevHash, block.Header.MinerAddress, params.ScratchpadBytes)
	hash, ok := pad.EvaluateAndCheck(block.Header.SerializePrefix(), block.Header.Nonce, params.PoncRounds, block.Header.Target)
	if !ok {
		return newValidationErr(CodeBadPoW, -1, "nonce", fmt.Errorf("hash exceeds target"))
	}
	_ = hash

	if block.ComputeMerkleRoot() != block.Header.MerkleRoot {
		return newValidationErr(CodeBadMerkle, -1, "merkle_root", fmt.Errorf("merkle root mismatch"))
	}

	return nil
}

// medianTimePast returns the median timestamp of the NumBlocksForMedianTimePast
// most recent blocks up to and including tipHeight, or 0 if the chain is
// still at genesis (tipHeight == 0 and no tip block exists yet).
func (p *Processor) medianTimePast(tipHeight uint32) (uint32, error) {
	window := uint32(NumBlocksForMedianTimePast)
	start := uint32(0)
	if tipHeight >= window {
		start = tipHeight - window + 1
	}
	times := make([]uint32, 0, window)
	for h := start; h <= tipHeight; h++ {
		hash, err := p.store.GetHashAtHeight(h)
		if err != nil {
			return 0, err
		}
		if hash.IsZero() {
			continue
		}
		b, err := p.store.GetBlock(hash)
		if err != nil {
			return 0, err
		}
		if b == nil {
			continue
		}
		times = append(times, b.Header.Timestamp)
	}
	if len(times) == 0 {
		return 0, nil
	}
	sortUint32(times)
	return times[len(times)/2], nil
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// expectedTarget returns the PoW target the incoming block at tip.Height+1
// must carry, retargeting every RetargetIntervalBlocks blocks.
func (p *Processor) expectedTarget(tip *Tip, params TunableParameters) (Hash, error) {
	nextHeight := tip.Height + 1
	if tip.Hash.IsZero() && tip.Height == 0 {
		return GenesisTarget, nil
	}
	if nextHeight%RetargetIntervalBlocks != 0 {
		tipBlock, err := p.store.GetBlock(tip.Hash)
		if err != nil || tipBlock == nil {
			return GenesisTarget, nil
		}
		return tipBlock.Header.Target, nil
	}

	tipBlock, err := p.store.GetBlock(tip.Hash)
	if err != nil || tipBlock == nil {
		return GenesisTarget, nil
	}
	var windowStartHeight uint32
	if tip.Height+1 >= RetargetIntervalBlocks {
		windowStartHeight = tip.Height + 1 - RetargetIntervalBlocks
	}
	startHash, err := p.store.GetHashAtHeight(windowStartHeight)
	if err != nil {
		return Hash{}, err
	}
	startBlock, err := p.store.GetBlock(startHash)
	if err != nil || startBlock == nil {
		return tipBlock.Header.Target, nil
	}
	actualSecs := uint64(tipBlock.Header.Timestamp) - uint64(startBlock.Header.Timestamp)
	return NextTarget(tipBlock.Header.Target, actualSecs), nil
}

func (p *Processor) applyTransaction(tx *Transaction, index int, shadow *shadowAccounts, feeSink *uint64, votes *[]PendingVote) error {
	if err := tx.IsStructurallyValid(); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			verr.TxIndex = index
		}
		return err
	}

	sender, err := shadow.get(tx.Sender)
	if err != nil {
		return err
	}
	if tx.Nonce != sender.ExpectedNonce() {
		return newValidationErr(CodeTxNonceInvalid, index, "nonce", fmt.Errorf("expected %d, got %d", sender.ExpectedNonce(), tx.Nonce))
	}
	total := tx.Amount + tx.Fee
	if total < tx.Amount || sender.Balance < total {
		return newValidationErr(CodeTxInsufficientFunds, index, "balance", fmt.Errorf("insufficient funds"))
	}

	recipient, err := shadow.get(tx.Recipient)
	if err != nil {
		return err
	}

	sender.Balance -= total
	newRecipientBalance := recipient.Balance + tx.Amount
	if newRecipientBalance < recipient.Balance {
		return newValidationErr(CodeAmountOverflow, index, "balance", fmt.Errorf("recipient credit overflow"))
	}
	recipient.Balance = newRecipientBalance
	*feeSink += tx.Fee
	isFirstOutbound := sender.Nonce == 0
	sender.Nonce++

	if isFirstOutbound && tx.HasReferral {
		code := PrivacyCode(tx.ReferralTag)
		refAddr, found, err := shadow.store.GetReferrerByPrivacyCode(code)
		if err != nil {
			return err
		}
		if found && sender.SetReferrerOnce(refAddr) {
			referrer, err := shadow.get(refAddr)
			if err != nil {
				return err
			}
			referrer.ReferredMinersCount++
		}
	}

	if tx.HasGovernance {
		key, value := decodeGovernancePayload(tx.GovernanceData)
		target := sum256(tx.GovernanceData[:])
		*votes = append(*votes, PendingVote{Voter: tx.Sender, Target: target, ParamKey: key, ParamValue: value})
	}

	return nil
}

// aggregateGovernance folds this block's votes into their proposals'
// tallies, schedules any proposal that just crossed
// params.GovernanceThresholdBps to activate GovernanceActivationDelayBlocks
// later, and applies whichever proposals were scheduled to activate at
// this exact height — writing the resulting parameters with batch.PutParams
// if any did. It returns the proposals that activated at this height.
func (p *Processor) aggregateGovernance(votes []PendingVote, shadow *shadowAccounts, params TunableParameters, height uint32, batch *CommitBatch) ([]*Proposal, error) {
	touched := make(map[Hash]*Proposal)
	scheduled := make(map[uint64][]Hash)

	for _, v := range votes {
		prop, ok := touched[v.Target]
		if !ok {
			loaded, err := p.store.GetProposal(v.Target)
			if err != nil {
				return nil, err
			}
			if loaded.WeightBps == 0 && loaded.ActivationHeight == 0 {
				loaded.ParamKey = v.ParamKey
				loaded.ParamValue = v.ParamValue
			}
			prop = loaded
			touched[v.Target] = prop
		}
		voter, err := shadow.get(v.Voter)
		if err != nil {
			return nil, err
		}
		prop.ApplyVote(v.Voter, voter.Contributions(), params.GovernanceCapBps)
		if prop.ActivationHeight == 0 && prop.WeightBps >= uint64(params.GovernanceThresholdBps) {
			activationHeight := uint64(height) + GovernanceActivationDelayBlocks
			prop.ActivationHeight = activationHeight
			scheduled[activationHeight] = append(scheduled[activationHeight], prop.TargetHash)
		}
	}

	for h, targets := range scheduled {
		existing, err := p.store.GetActivationQueue(h)
		if err != nil {
			return nil, err
		}
		batch.PutActivationQueue(h, append(existing, targets...))
	}

	for _, prop := range touched {
		batch.PutProposal(prop)
	}

	due, err := p.store.GetActivationQueue(uint64(height))
	if err != nil {
		return nil, err
	}

	var activated []*Proposal
	for _, target := range due {
		prop, ok := touched[target]
		if !ok {
			prop, err = p.store.GetProposal(target)
			if err != nil {
				return nil, err
			}
		}
		newParams, err := params.WithParam(prop.ParamKey, prop.ParamValue)
		if err != nil {
			continue // stored value no longer fits the governed range; skip rather than corrupt params
		}
		params = newParams
		activated = append(activated, prop)
	}
	if len(due) > 0 {
		batch.ClearActivationQueue(uint64(height))
	}
	if len(activated) > 0 {
		batch.PutParams(params)
	}
	return activated, nil
}

// accumulateWork records the new tip's target as the chain's running
// accumulated-work marker. With MaxReorgDepth fixed at 0 this core only
// ever extends the current tip directly (no undo log, no competing-chain
// comparison — see DESIGN.md's Open Question 2 decision), so
// AccumulatedWork never actually needs to be compared between candidate
// chains; it is carried on Tip only so a future reorg implementation has
// a place to start from.
func accumulateWork(prev Hash, target Hash) Hash {
	return target
}
