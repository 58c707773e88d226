package knotcoin

import "testing"

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := &BlockHeader{
		Version:      1,
		PrevHash:     sum256([]byte("prev")),
		MerkleRoot:   sum256([]byte("merkle")),
		Timestamp:    1771545600,
		Target:       targetWithLowByte(100),
		MinerAddress: Address{1, 2, 3},
		Height:       42,
		Nonce:        123456789,
	}
	encoded := h.Serialize()
	if len(encoded) != BlockHeaderBytes {
		t.Fatalf("got %d bytes, want %d", len(encoded), BlockHeaderBytes)
	}
	decoded, err := ParseBlockHeader(encoded)
	if err != nil {
		t.Fatalf("ParseBlockHeader: %v", err)
	}
	if *decoded != *h {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, h)
	}
}

func TestHeaderPrefixIsExactlyBudgeted(t *testing.T) {
	h := &BlockHeader{}
	if len(h.SerializePrefix()) != BlockHeaderPrefixBytes {
		t.Fatalf("prefix length drifted from the consensus-critical byte budget")
	}
}

func TestBlockMerkleRootMatchesTxs(t *testing.T) {
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: Address{1}}
	b := &Block{Header: &BlockHeader{}, Txs: []*Transaction{coinbase}}
	if b.ComputeMerkleRoot() != MerkleRoot([]Hash{coinbase.TxID()}) {
		t.Fatalf("merkle root does not match single coinbase txid")
	}
}

func TestBlockWireRoundTrip(t *testing.T) {
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: Address{1}}
	header := &BlockHeader{Height: 7, Target: targetWithLowByte(50)}
	b := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = b.ComputeMerkleRoot()

	wire := b.SerializeWire()
	decoded, err := ParseBlockWire(wire)
	if err != nil {
		t.Fatalf("ParseBlockWire: %v", err)
	}
	if decoded.Header.Height != 7 || len(decoded.Txs) != 1 {
		t.Fatalf("wire round trip mismatch: %+v", decoded)
	}
}
