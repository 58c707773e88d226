package knotcoin

// NodeContext bundles the store, mempool, and processor a running node
// needs, in place of any process-wide globals. Every RPC handler and CLI
// command takes a *NodeContext explicitly instead of reaching for package
// state.
type NodeContext struct {
	Store     *Store
	Mempool   *Mempool
	Processor *Processor
}

// NewNodeContext opens the store at dataDir and wires a mempool and
// processor on top of it.
func NewNodeContext(dataDir string) (*NodeContext, error) {
	store, err := OpenStore(dataDir)
	if err != nil {
		return nil, err
	}
	return &NodeContext{
		Store:     store,
		Mempool:   NewMempool(store),
		Processor: NewProcessor(store),
	}, nil
}

// Close releases the underlying store handle.
func (n *NodeContext) Close() error {
	return n.Store.Close()
}

// EstimateReward returns the base reward for height and, if referrerAddr
// is non-zero, the referral bonus that would be paid to it.
func (n *NodeContext) EstimateReward(height uint32, referrerAddr Address, hasReferrer bool) (base, bonus uint64, err error) {
	base = BaseReward(uint64(height))
	if !hasReferrer {
		return base, 0, nil
	}
	referrer, err := n.Store.GetAccount(referrerAddr)
	if err != nil {
		return 0, 0, err
	}
	bonus = ReferralBonus(base, true, referrer.LastMinedHeight, uint64(height))
	return base, bonus, nil
}
