package knotcoin

import "encoding/binary"

// This file holds the fixed-shape encodings for everything the Store
// persists. Each record is a flat, versionless layout — the store's
// column-family byte prefix already disambiguates record kind, so no
// type tag is needed inside the value itself.

func encodeAccount(a *Account) []byte {
	buf := make([]byte, 1+AddressBytes+8*6)
	off := 0
	if a.HasReferrer {
		buf[off] = 1
	}
	off++
	copy(buf[off:], a.Referrer[:])
	off += AddressBytes
	binary.LittleEndian.PutUint64(buf[off:], a.Balance)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], a.Nonce)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], a.LastMinedHeight)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], a.BlocksMined)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], a.ReferredMinersCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], a.TotalReferralBonus)
	off += 8
	return buf
}

func decodeAccount(addr Address, raw []byte) (*Account, error) {
	want := 1 + AddressBytes + 8*6
	if len(raw) != want {
		return nil, ErrSizeMismatch
	}
	a := &Account{PrivacyCode: DerivePrivacyCode(addr)}
	off := 0
	a.HasReferrer = raw[off] == 1
	off++
	copy(a.Referrer[:], raw[off:off+AddressBytes])
	off += AddressBytes
	a.Balance = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	a.Nonce = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	a.LastMinedHeight = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	a.BlocksMined = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	a.ReferredMinersCount = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	a.TotalReferralBonus = binary.LittleEndian.Uint64(raw[off:])
	return a, nil
}

func encodeTip(t *Tip) []byte {
	buf := make([]byte, HashBytes+4+HashBytes)
	copy(buf, t.Hash[:])
	binary.LittleEndian.PutUint32(buf[HashBytes:], t.Height)
	copy(buf[HashBytes+4:], t.AccumulatedWork[:])
	return buf
}

func decodeTip(raw []byte) *Tip {
	if len(raw) != HashBytes+4+HashBytes {
		return &Tip{}
	}
	t := &Tip{}
	copy(t.Hash[:], raw[:HashBytes])
	t.Height = binary.LittleEndian.Uint32(raw[HashBytes:])
	copy(t.AccumulatedWork[:], raw[HashBytes+4:])
	return t
}

func encodeParams(p TunableParameters) []byte {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint32(buf[0:], p.ScratchpadBytes)
	binary.LittleEndian.PutUint32(buf[4:], p.PoncRounds)
	binary.LittleEndian.PutUint32(buf[8:], p.GovernanceCapBps)
	binary.LittleEndian.PutUint32(buf[12:], p.BlockSizeCeiling)
	binary.LittleEndian.PutUint32(buf[16:], p.GovernanceThresholdBps)
	return buf
}

func decodeParams(raw []byte) TunableParameters {
	if len(raw) != 20 {
		return DefaultParameters()
	}
	return TunableParameters{
		ScratchpadBytes:        binary.LittleEndian.Uint32(raw[0:]),
		PoncRounds:             binary.LittleEndian.Uint32(raw[4:]),
		GovernanceCapBps:       binary.LittleEndian.Uint32(raw[8:]),
		BlockSizeCeiling:       binary.LittleEndian.Uint32(raw[12:]),
		GovernanceThresholdBps: binary.LittleEndian.Uint32(raw[16:]),
	}
}

func encodeProposal(p *Proposal) []byte {
	voters := p.Voters.Values()
	buf := make([]byte, 8+1+4+8+4+len(voters)*AddressBytes)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], p.WeightBps)
	off += 8
	buf[off] = byte(p.ParamKey)
	off++
	binary.LittleEndian.PutUint32(buf[off:], p.ParamValue)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], p.ActivationHeight)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(voters)))
	off += 4
	for _, v := range voters {
		copy(buf[off:], v[:])
		off += AddressBytes
	}
	return buf
}

func decodeProposal(target Hash, raw []byte) (*Proposal, error) {
	if len(raw) < 8+1+4+8+4 {
		return nil, ErrSizeMismatch
	}
	p := NewProposal(target)
	off := 0
	p.WeightBps = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	p.ParamKey = ParamKey(raw[off])
	off++
	p.ParamValue = binary.LittleEndian.Uint32(raw[off:])
	off += 4
	p.ActivationHeight = binary.LittleEndian.Uint64(raw[off:])
	off += 8
	count := binary.LittleEndian.Uint32(raw[off:])
	off += 4
	if len(raw) != off+int(count)*AddressBytes {
		return nil, ErrSizeMismatch
	}
	for i := uint32(0); i < count; i++ {
		var a Address
		copy(a[:], raw[off:off+AddressBytes])
		off += AddressBytes
		p.Voters.Add(a)
	}
	return p, nil
}

// encodeBlockRaw is the uncompressed flat layout shared by on-disk
// storage (compressed before hitting leveldb) and the RPC wire format
// (sent as-is).
func encodeBlockRaw(b *Block) []byte {
	header := b.Header.Serialize()
	buf := make([]byte, 4+len(header))
	binary.LittleEndian.PutUint32(buf, uint32(len(b.Txs)))
	copy(buf[4:], header)
	for _, t := range b.Txs {
		txBytes := t.Serialize()
		lenPrefix := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenPrefix, uint32(len(txBytes)))
		buf = append(buf, lenPrefix...)
		buf = append(buf, txBytes...)
	}
	return buf
}

func decodeBlockRaw(data []byte) (*Block, error) {
	if len(data) < 4+BlockHeaderBytes {
		return nil, newStoreErr(CodeCorrupted, ErrSizeMismatch)
	}
	txCount := binary.LittleEndian.Uint32(data)
	off := 4
	header, err := ParseBlockHeader(data[off : off+BlockHeaderBytes])
	if err != nil {
		return nil, newStoreErr(CodeCorrupted, err)
	}
	off += BlockHeaderBytes
	b := &Block{Header: header, Txs: make([]*Transaction, 0, txCount)}
	for i := uint32(0); i < txCount; i++ {
		if len(data) < off+4 {
			return nil, newStoreErr(CodeCorrupted, ErrSizeMismatch)
		}
		txLen := binary.LittleEndian.Uint32(data[off:])
		off += 4
		if len(data) < off+int(txLen) {
			return nil, newStoreErr(CodeCorrupted, ErrSizeMismatch)
		}
		tx, err := ParseTransaction(data[off : off+int(txLen)])
		if err != nil {
			return nil, newStoreErr(CodeCorrupted, err)
		}
		b.Txs = append(b.Txs, tx)
		off += int(txLen)
	}
	return b, nil
}

func encodeBlock(b *Block) []byte {
	return compressBlockBytes(encodeBlockRaw(b))
}

func decodeBlock(raw []byte) (*Block, error) {
	data, err := decompressBlockBytes(raw)
	if err != nil {
		return nil, newStoreErr(CodeCorrupted, err)
	}
	return decodeBlockRaw(data)
}

// SerializeWire returns the uncompressed flat encoding used when a block
// crosses the RPC boundary (submit_block / get_block). On-disk storage
// additionally LZ4-compresses this same layout.
func (b *Block) SerializeWire() []byte {
	return encodeBlockRaw(b)
}

// ParseBlockWire decodes a block from its RPC wire encoding.
func ParseBlockWire(data []byte) (*Block, error) {
	return decodeBlockRaw(data)
}
