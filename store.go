package knotcoin

import (
	"encoding/binary"

	"github.com/pierrec/lz4"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Store is the durable key-value engine behind the chain state. It is
// backed by github.com/syndtr/goleveldb; each logical column family is a
// single-byte key-prefixed keyspace within the one physical leveldb.DB.
// leveldb's own WAL and fsync-on-sync-write give the write-ahead-logging
// and crash-durability guarantees needed without a bespoke
// implementation.
type Store struct {
	db *leveldb.DB
}

const (
	prefixBlock         byte = 'B'
	prefixHashByHeight  byte = 'H'
	prefixAccount       byte = 'A'
	prefixTip           byte = 'T'
	prefixProposal      byte = 'P'
	prefixParams        byte = 'C'
	prefixReferralIndex byte = 'R'
	prefixActivation    byte = 'V'
)

var tipKey = []byte{prefixTip}
var paramsKey = []byte{prefixParams}

// OpenStore opens (creating if absent) a Store at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (s *Store) Close() error { return s.db.Close() }

func keyWithPrefix(prefix byte, suffix []byte) []byte {
	out := make([]byte, 1+len(suffix))
	out[0] = prefix
	copy(out[1:], suffix)
	return out
}

func heightKey(height uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, height)
	return keyWithPrefix(prefixHashByHeight, buf)
}

func activationKey(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return keyWithPrefix(prefixActivation, buf)
}

// GetAccount returns the account record for addr, or a freshly zeroed
// Account if addr has never been credited: absent entries are implicit
// zero-balance accounts.
func (s *Store) GetAccount(addr Address) (*Account, error) {
	raw, err := s.db.Get(keyWithPrefix(prefixAccount, addr[:]), nil)
	if err == leveldb.ErrNotFound {
		return &Account{PrivacyCode: DerivePrivacyCode(addr)}, nil
	}
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	acc, err := decodeAccount(addr, raw)
	if err != nil {
		return nil, newStoreErr(CodeCorrupted, err)
	}
	return acc, nil
}

// Tip is the current canonical chain head.
type Tip struct {
	Hash             Hash
	Height           uint32
	AccumulatedWork  Hash // big-endian 256-bit running work total
}

// GetTip returns the current tip, or the zero Tip if the chain has no
// blocks yet.
func (s *Store) GetTip() (*Tip, error) {
	raw, err := s.db.Get(tipKey, nil)
	if err == leveldb.ErrNotFound {
		return &Tip{}, nil
	}
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	return decodeTip(raw), nil
}

// GetBlock returns the stored block for hash, or nil if absent.
func (s *Store) GetBlock(hash Hash) (*Block, error) {
	raw, err := s.db.Get(keyWithPrefix(prefixBlock, hash[:]), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	return decodeBlock(raw)
}

// GetHashAtHeight returns the canonical block hash at height, or the
// zero hash if none is recorded.
func (s *Store) GetHashAtHeight(height uint32) (Hash, error) {
	raw, err := s.db.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return ZeroHash, nil
	}
	if err != nil {
		return ZeroHash, newStoreErr(CodeIOFault, err)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// GetParams returns the current tunable parameters, or the defaults if
// none have ever been written.
func (s *Store) GetParams() (TunableParameters, error) {
	raw, err := s.db.Get(paramsKey, nil)
	if err == leveldb.ErrNotFound {
		return DefaultParameters(), nil
	}
	if err != nil {
		return TunableParameters{}, newStoreErr(CodeIOFault, err)
	}
	return decodeParams(raw), nil
}

// GetReferrerByPrivacyCode resolves a referral tag to the address it was
// issued to, via the referral_index column family.
func (s *Store) GetReferrerByPrivacyCode(code PrivacyCode) (Address, bool, error) {
	raw, err := s.db.Get(keyWithPrefix(prefixReferralIndex, code[:]), nil)
	if err == leveldb.ErrNotFound {
		return Address{}, false, nil
	}
	if err != nil {
		return Address{}, false, newStoreErr(CodeIOFault, err)
	}
	var addr Address
	copy(addr[:], raw)
	return addr, true, nil
}

// GetProposal returns a target's proposal record, or a freshly created
// one if none has ever been voted on.
func (s *Store) GetProposal(target Hash) (*Proposal, error) {
	raw, err := s.db.Get(keyWithPrefix(prefixProposal, target[:]), nil)
	if err == leveldb.ErrNotFound {
		return NewProposal(target), nil
	}
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	return decodeProposal(target, raw)
}

// GetActivationQueue returns the target hashes of proposals scheduled to
// activate at height, or nil if none are due.
func (s *Store) GetActivationQueue(height uint64) ([]Hash, error) {
	raw, err := s.db.Get(activationKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, newStoreErr(CodeIOFault, err)
	}
	n := len(raw) / HashBytes
	out := make([]Hash, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], raw[i*HashBytes:(i+1)*HashBytes])
	}
	return out, nil
}

// CommitBatch is the everything-or-nothing write for applying one block:
// tip update, block storage, height index, account mutations, referral
// index insertions and proposal updates all land in one leveldb.Batch
// committed with Sync so a crash after this call returns either the
// whole update or none of it.
type CommitBatch struct {
	batch *leveldb.Batch
}

// NewCommitBatch starts an empty batch.
func NewCommitBatch() *CommitBatch { return &CommitBatch{batch: new(leveldb.Batch)} }

func (c *CommitBatch) PutBlock(hash Hash, b *Block) {
	c.batch.Put(keyWithPrefix(prefixBlock, hash[:]), encodeBlock(b))
}

func (c *CommitBatch) PutHashAtHeight(height uint32, hash Hash) {
	c.batch.Put(heightKey(height), hash[:])
}

func (c *CommitBatch) PutAccount(addr Address, acc *Account) {
	c.batch.Put(keyWithPrefix(prefixAccount, addr[:]), encodeAccount(acc))
}

func (c *CommitBatch) PutTip(tip *Tip) {
	c.batch.Put(tipKey, encodeTip(tip))
}

func (c *CommitBatch) PutReferralIndex(code PrivacyCode, addr Address) {
	c.batch.Put(keyWithPrefix(prefixReferralIndex, code[:]), addr[:])
}

func (c *CommitBatch) PutProposal(p *Proposal) {
	c.batch.Put(keyWithPrefix(prefixProposal, p.TargetHash[:]), encodeProposal(p))
}

func (c *CommitBatch) PutParams(p TunableParameters) {
	c.batch.Put(paramsKey, encodeParams(p))
}

// PutActivationQueue overwrites the full set of proposal target hashes
// scheduled to activate at height.
func (c *CommitBatch) PutActivationQueue(height uint64, targets []Hash) {
	raw := make([]byte, len(targets)*HashBytes)
	for i, h := range targets {
		copy(raw[i*HashBytes:], h[:])
	}
	c.batch.Put(activationKey(height), raw)
}

// ClearActivationQueue removes a height's activation entry once it has
// been processed.
func (c *CommitBatch) ClearActivationQueue(height uint64) {
	c.batch.Delete(activationKey(height))
}

// Commit writes the batch with Sync set, giving fsync-on-commit
// durability.
func (s *Store) Commit(c *CommitBatch) error {
	if err := s.db.Write(c.batch, &opt.WriteOptions{Sync: true}); err != nil {
		return newStoreErr(CodeWriteConflict, err)
	}
	return nil
}

// compressBlockBytes and decompressBlockBytes wrap the LZ4 block codec
// applied to the blocks column family, trading a small CPU cost for
// reduced on-disk footprint of the append-only block log.
func compressBlockBytes(raw []byte) []byte {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil || n == 0 {
		// incompressible or too small to benefit; store raw with a
		// zero-length compressed marker.
		out := make([]byte, 4+len(raw))
		binary.LittleEndian.PutUint32(out, 0)
		copy(out[4:], raw)
		return out
	}
	out := make([]byte, 4+n)
	binary.LittleEndian.PutUint32(out, uint32(len(raw)))
	copy(out[4:], dst[:n])
	return out
}

func decompressBlockBytes(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrSizeMismatch
	}
	origLen := binary.LittleEndian.Uint32(data)
	if origLen == 0 {
		return data[4:], nil
	}
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(data[4:], dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
