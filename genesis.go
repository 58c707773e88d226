package knotcoin

// GenesisTarget is the starting PoW target: easy enough to mine the
// first retarget window's worth of blocks at whatever hashrate the
// network launches with.
var GenesisTarget = Hash{
	0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// Genesis returns the unmined header for height 0: a previous hash and
// merkle root of all zeroes, and a coinbase crediting minerAddr. Genesis
// content (miner address, timestamp, target) is a runtime parameter
// supplied by the node operator, never a baked-in constant, so it must
// be replaced before mining a real network's first block.
//
// target must match the GenesisTarget the running node's Processor will
// validate height 0 against (see expectedTarget); operators that want a
// non-default launch difficulty set the package-level GenesisTarget
// variable before calling either.
func Genesis(minerAddr Address, timestamp uint32, target Hash) *Block {
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: minerAddr}
	header := &BlockHeader{
		Version:      1,
		PrevHash:     ZeroHash,
		Timestamp:    timestamp,
		Target:       target,
		MinerAddress: minerAddr,
		Height:       0,
	}
	block := &Block{Header: header, Txs: []*Transaction{coinbase}}
	header.MerkleRoot = block.ComputeMerkleRoot()
	return block
}
