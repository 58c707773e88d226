package knotcoin

import (
	"sort"
	"sync"

	metro "github.com/dgryski/go-metro"
	cuckoofilter "github.com/seiflotfy/cuckoofilter"
)

// mempoolEntry is one admitted transaction plus the bookkeeping the pool
// needs for ordering and eviction.
type mempoolEntry struct {
	tx         *Transaction
	txid       Hash
	size       int
	feePerByte uint64
}

func newMempoolEntry(tx *Transaction) *mempoolEntry {
	raw := tx.Serialize()
	return &mempoolEntry{
		tx:         tx,
		txid:       tx.TxID(),
		size:       len(raw),
		feePerByte: tx.Fee * 1000 / uint64(len(raw)), // scaled to avoid truncation to zero on small fees
	}
}

// Mempool is the bounded, fee-ordered transaction pool. A cuckoofilter
// pre-filters obviously-duplicate txids before the authoritative map
// lookup, keyed here with github.com/dgryski/go-metro's non-cryptographic
// hash since this filter is a performance optimization only, never
// consensus-affecting — duplicate suppression is still authoritatively
// enforced by the byTxID map.
type Mempool struct {
	mu sync.RWMutex

	store *Store

	byTxID      map[Hash]*mempoolEntry
	bySenderSeq map[Address]map[uint64]Hash // sender -> nonce -> txid

	seenFilter *cuckoofilter.Filter
}

// NewMempool creates an empty pool backed by store for tip-relative
// admission checks.
func NewMempool(store *Store) *Mempool {
	return &Mempool{
		store:       store,
		byTxID:      make(map[Hash]*mempoolEntry),
		bySenderSeq: make(map[Address]map[uint64]Hash),
		seenFilter:  cuckoofilter.NewFilter(1 << 20),
	}
}

func metroKey(txid Hash) []byte {
	h := metro.Hash64(txid[:], 0)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(h >> (8 * i))
	}
	return out
}

// Size returns the number of currently admitted transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTxID)
}

// Submit validates and admits tx, applying replace-by-fee if tx
// collides with an existing (sender, nonce) pair.
func (m *Mempool) Submit(tx *Transaction) error {
	if err := tx.IsStructurallyValid(); err != nil {
		return newPolicyErr(CodeSignatureInvalid, err)
	}

	entry := newMempoolEntry(tx)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Fast-reject on the probabilistic filter first: a miss proves
	// absence outright and skips the map lookup; a hit still falls
	// through to the authoritative check since cuckoofilter allows
	// false positives but never false negatives.
	if m.seenFilter.Lookup(metroKey(entry.txid)) {
		if _, exists := m.byTxID[entry.txid]; exists {
			return newPolicyErr(CodeDuplicateTx, ErrMalformedEncoding)
		}
	}

	account, err := m.store.GetAccount(tx.Sender)
	if err != nil {
		return err
	}

	var replaceID Hash
	replacing := false
	seqMap, hasSender := m.bySenderSeq[tx.Sender]
	if hasSender {
		if existingID, collides := seqMap[tx.Nonce]; collides {
			existing := m.byTxID[existingID]
			if !rbfWins(existing.tx.Fee, tx.Fee) {
				return newPolicyErr(CodeRBFRejected, ErrMalformedEncoding)
			}
			replaceID, replacing = existingID, true
		}
	}

	if tx.Nonce != account.ExpectedNonce() {
		return newPolicyErr(CodeNonceGap, ErrMalformedEncoding)
	}
	if account.Balance < tx.Amount+tx.Fee {
		return newPolicyErr(CodeInsufficientFunds, ErrMalformedEncoding)
	}
	if tx.Fee < MinFeeKnots {
		return newPolicyErr(CodeFeeTooLow, ErrMalformedEncoding)
	}
	if replacing {
		m.removeLocked(replaceID)
		seqMap, hasSender = m.bySenderSeq[tx.Sender]
	}
	if len(m.byTxID) >= MempoolMaxEntries {
		return newPolicyErr(CodeMempoolFull, ErrMalformedEncoding)
	}

	m.byTxID[entry.txid] = entry
	if !hasSender {
		seqMap = make(map[uint64]Hash)
		m.bySenderSeq[tx.Sender] = seqMap
	}
	seqMap[tx.Nonce] = entry.txid
	m.seenFilter.Insert(metroKey(entry.txid))
	return nil
}

// rbfWins reports whether newFee may replace oldFee under the
// replace-by-fee rule: at least 10% higher AND an absolute increase of
// at least 1 knot.
func rbfWins(oldFee, newFee uint64) bool {
	if newFee <= oldFee {
		return false
	}
	if newFee-oldFee < MempoolRBFMinAbsoluteBump {
		return false
	}
	return newFee*100 >= oldFee*(100+MempoolRBFMinBumpPercent)
}

func (m *Mempool) removeLocked(txid Hash) {
	entry, ok := m.byTxID[txid]
	if !ok {
		return
	}
	delete(m.byTxID, txid)
	if seqMap, ok := m.bySenderSeq[entry.tx.Sender]; ok {
		delete(seqMap, entry.tx.Nonce)
		if len(seqMap) == 0 {
			delete(m.bySenderSeq, entry.tx.Sender)
		}
	}
	m.seenFilter.Delete(metroKey(txid))
}

// Ordered returns the pool's entries sorted by descending fee-per-byte,
// tie-broken ascending by txid.
func (m *Mempool) Ordered() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*mempoolEntry, 0, len(m.byTxID))
	for _, e := range m.byTxID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].feePerByte != entries[j].feePerByte {
			return entries[i].feePerByte > entries[j].feePerByte
		}
		return entries[i].txid.Less(entries[j].txid)
	})
	out := make([]*Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// MakeTemplate selects transactions from the top of the ordered pool
// until sizeCeiling or maxTxs is hit, and prepends a coinbase.
func MakeTemplate(pool *Mempool, minerAddr Address, sizeCeiling uint32, maxTxs int) []*Transaction {
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: minerAddr}
	selected := []*Transaction{coinbase}
	used := len(coinbase.Serialize())

	for _, tx := range pool.Ordered() {
		if len(selected) >= maxTxs {
			break
		}
		size := len(tx.Serialize())
		if uint32(used+size) > sizeCeiling {
			continue
		}
		selected = append(selected, tx)
		used += size
	}
	return selected
}

// EvictStale drops pool entries that are no longer applicable against
// the current tip: nonce now in the past, or balance no longer
// sufficient. Signatures are not re-checked since they are stable once
// admitted.
func (m *Mempool) EvictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for txid, entry := range m.byTxID {
		account, err := m.store.GetAccount(entry.tx.Sender)
		if err != nil {
			continue
		}
		if entry.tx.Nonce < account.Nonce || account.Balance < entry.tx.Amount+entry.tx.Fee {
			m.removeLocked(txid)
		}
	}
}
