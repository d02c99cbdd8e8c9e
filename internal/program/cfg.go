package program

// CFGType classifies why a CFG exists: the task's own subprogram, a callee
// introduced while following a call instruction, or an extra user-supplied
// entry point (spec §3.6).
type CFGType int

const (
	CFGSubprog CFGType = iota
	CFGSynth
	CFGUser
)

// CFG is a directed graph of blocks with a distinguished entry and exit,
// owning its blocks and edges as an arena (spec §9: avoid owning references
// both ways in cyclic graphs — edges reference blocks by index, never by
// pointer-both-ways).
type CFG struct {
	EntityProps

	Index            int
	FirstInstruction uint64
	Type             CFGType

	Blocks []*Block
	Edges  []*Edge

	Entry   BlockID
	Exit    BlockID
	unknown BlockID
	phony   BlockID

	// Callers lists the SynthBlocks (in other CFGs) whose CalleeCFG is
	// this CFG's index.
	Callers []BlockID
}

// NewCFGForTest constructs an empty CFG (Entry/Exit/Unknown/Phony only),
// exported for use by other packages' test fixtures (e.g. internal/structural,
// internal/transform) that need a hand-built CFG without running the full
// Build pipeline.
func NewCFGForTest(index int, firstInstr uint64, typ CFGType) *CFG {
	return newCFG(index, firstInstr, typ)
}

func newCFG(index int, firstInstr uint64, typ CFGType) *CFG {
	c := &CFG{
		EntityProps:      newEntityProps(),
		Index:            index,
		FirstInstruction: firstInstr,
		Type:             typ,
	}
	c.Entry = c.addBlockID(BlockEndEntry)
	c.Exit = c.addBlockID(BlockEndExit)
	c.unknown = c.addBlockID(BlockEndUnknown)
	c.phony = c.addBlockID(BlockEndPhony)
	return c
}

func (c *CFG) addBlockID(kind BlockKind) BlockID {
	id := BlockID{CFG: c.Index, Block: len(c.Blocks)}
	c.Blocks = append(c.Blocks, newBlock(kind, id))
	return id
}

// AddBlock appends a new Basic or Synth block and returns it.
func (c *CFG) AddBlock(kind BlockKind) *Block {
	id := c.addBlockID(kind)
	return c.Blocks[id.Block]
}

// UnknownBlock returns the id of this CFG's single End(Unknown) block,
// the target of computed branches that stay unresolved (spec §4.3 step 3).
func (c *CFG) UnknownBlock() BlockID { return c.unknown }

// PhonyBlock returns the id of this CFG's single End(Phony) block, a
// wiring placeholder transform passes may use (e.g. the synthetic edge
// block of delayed-branch normalisation, spec §4.4).
func (c *CFG) PhonyBlock() BlockID { return c.phony }

// BlockAt returns the block for id, which must belong to this CFG.
func (c *CFG) BlockAt(id BlockID) *Block {
	if id.CFG != c.Index {
		return nil
	}
	if id.Block < 0 || id.Block >= len(c.Blocks) {
		return nil
	}
	return c.Blocks[id.Block]
}

// AddEdge creates a directed edge from src to sink with the given flags and
// links it into both endpoints' adjacency lists.
func (c *CFG) AddEdge(src, sink BlockID, flags EdgeFlag) *Edge {
	e := newEdge(src, sink, flags)
	c.Edges = append(c.Edges, e)
	if b := c.BlockAt(src); b != nil {
		b.succs = append(b.succs, sink)
	}
	if b := c.BlockAt(sink); b != nil {
		b.preds = append(b.preds, src)
	}
	return e
}

// EdgesFrom returns every edge whose source is id.
func (c *CFG) EdgesFrom(id BlockID) []*Edge {
	var out []*Edge
	for _, e := range c.Edges {
		if e.SourceID == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns every edge whose sink is id.
func (c *CFG) EdgesTo(id BlockID) []*Edge {
	var out []*Edge
	for _, e := range c.Edges {
		if e.SinkID == id {
			out = append(out, e)
		}
	}
	return out
}

// Close releases the CFG's own property list and every block's and edge's.
func (c *CFG) Close() {
	for _, b := range c.Blocks {
		b.Close()
	}
	for _, e := range c.Edges {
		e.Close()
	}
	c.EntityProps.Close()
}
