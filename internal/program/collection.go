package program

// CFGCollection is an ordered list of CFGs with a distinguished entry CFG
// (spec §3.7). It owns its CFGs and provides total block count and a
// block-id -> block mapping spanning all of them.
type CFGCollection struct {
	EntityProps

	CFGs       []*CFG
	EntryIndex int
}

// NewCFGCollection creates an empty collection.
func NewCFGCollection() *CFGCollection {
	return &CFGCollection{EntityProps: newEntityProps(), EntryIndex: -1}
}

// Add appends cfg, assigning it the next index, and returns that index.
func (c *CFGCollection) Add(cfg *CFG) int {
	idx := len(c.CFGs)
	cfg.Index = idx
	c.CFGs = append(c.CFGs, cfg)
	if c.EntryIndex == -1 {
		c.EntryIndex = idx
	}
	return idx
}

// Entry returns the collection's distinguished entry CFG.
func (c *CFGCollection) Entry() *CFG {
	if c.EntryIndex < 0 || c.EntryIndex >= len(c.CFGs) {
		return nil
	}
	return c.CFGs[c.EntryIndex]
}

// TotalBlocks returns the sum of blocks across every CFG in the collection.
func (c *CFGCollection) TotalBlocks() int {
	n := 0
	for _, cfg := range c.CFGs {
		n += len(cfg.Blocks)
	}
	return n
}

// BlockByID resolves a global block id to its Block.
func (c *CFGCollection) BlockByID(id BlockID) (*Block, bool) {
	if id.CFG < 0 || id.CFG >= len(c.CFGs) {
		return nil, false
	}
	b := c.CFGs[id.CFG].BlockAt(id)
	return b, b != nil
}

// Close releases every CFG's resources, then the collection's own.
func (c *CFGCollection) Close() {
	for _, cfg := range c.CFGs {
		cfg.Close()
	}
	c.EntityProps.Close()
}
