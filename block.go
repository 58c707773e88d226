package knotcoin

import (
	"encoding/binary"
)

// BlockHeader is the fixed 148-byte header: BlockHeaderPrefixBytes of
// pre-nonce prefix plus an 8-byte little-endian nonce. Field order and
// widths are chosen so the prefix sums to exactly BlockHeaderPrefixBytes.
type BlockHeader struct {
	Version      uint32
	PrevHash     Hash
	MerkleRoot   Hash
	Timestamp    uint32
	Target       Hash
	MinerAddress Address
	Height       uint32
	Nonce        uint64
}

// SerializePrefix writes the pre-nonce portion of the header: everything
// the PONC engine's per-nonce evaluation mixes in as header_prefix.
func (h *BlockHeader) SerializePrefix() []byte {
	buf := make([]byte, BlockHeaderPrefixBytes)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], h.Version)
	off += 4
	copy(buf[off:], h.PrevHash[:])
	off += HashBytes
	copy(buf[off:], h.MerkleRoot[:])
	off += HashBytes
	binary.LittleEndian.PutUint32(buf[off:], h.Timestamp)
	off += 4
	copy(buf[off:], h.Target[:])
	off += HashBytes
	copy(buf[off:], h.MinerAddress[:])
	off += AddressBytes
	binary.LittleEndian.PutUint32(buf[off:], h.Height)
	off += 4
	if off != BlockHeaderPrefixBytes {
		panic("knotcoin: header prefix layout drift")
	}
	return buf
}

// Serialize returns the full 148-byte wire encoding: prefix || nonce.
func (h *BlockHeader) Serialize() []byte {
	out := make([]byte, BlockHeaderBytes)
	copy(out, h.SerializePrefix())
	binary.LittleEndian.PutUint64(out[BlockHeaderPrefixBytes:], h.Nonce)
	return out
}

// ParseBlockHeader decodes a wire-encoded header.
func ParseBlockHeader(data []byte) (*BlockHeader, error) {
	if len(data) != BlockHeaderBytes {
		return nil, &EncodingError{Op: "ParseBlockHeader", Err: ErrSizeMismatch}
	}
	h := &BlockHeader{}
	off := 0
	h.Version = binary.LittleEndian.Uint32(data[off:])
	off += 4
	copy(h.PrevHash[:], data[off:off+HashBytes])
	off += HashBytes
	copy(h.MerkleRoot[:], data[off:off+HashBytes])
	off += HashBytes
	h.Timestamp = binary.LittleEndian.Uint32(data[off:])
	off += 4
	copy(h.Target[:], data[off:off+HashBytes])
	off += HashBytes
	copy(h.MinerAddress[:], data[off:off+AddressBytes])
	off += AddressBytes
	h.Height = binary.LittleEndian.Uint32(data[off:])
	off += 4
	h.Nonce = binary.LittleEndian.Uint64(data[off:])
	return h, nil
}

// PowHash computes the PoW output for this header under the given
// tunables, building a fresh scratchpad for (PrevHash, MinerAddress).
// Callers validating many nonces against the same template should build
// the Scratchpad once with NewScratchpad and call its Evaluate directly
// instead of using this convenience wrapper.
func (h *BlockHeader) PowHash(params TunableParameters) Hash {
	pad := NewScratchpad(h.PrevHash, h.MinerAddress, params.ScratchpadBytes)
	return pad.Evaluate(h.SerializePrefix(), h.Nonce, params.PoncRounds)
}

// Block is a header plus an ordered transaction list whose first entry is
// the implicit coinbase.
type Block struct {
	Header *BlockHeader
	Txs    []*Transaction
}

// ComputeMerkleRoot recomputes the merkle root over this block's
// transaction ids.
func (b *Block) ComputeMerkleRoot() Hash {
	ids := make([]Hash, len(b.Txs))
	for i, t := range b.Txs {
		ids[i] = t.TxID()
	}
	return MerkleRoot(ids)
}

// Coinbase returns the block's first transaction, or nil for an
// (invalid) empty block.
func (b *Block) Coinbase() *Transaction {
	if len(b.Txs) == 0 {
		return nil
	}
	return b.Txs[0]
}
