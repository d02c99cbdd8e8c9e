package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/program"
	"wcet/internal/structural"
)

func TestClassifyAlwaysHitWhenMustGuaranteesResidency(t *testing.T) {
	must := NewACS(4).Access(7)
	may := NewACS(4).Access(7)
	stack := NewPersistenceStack(4)

	v := Classify(&structural.LoopInfo{Enclosing: map[program.BlockID]program.BlockID{}}, nil, must, may, stack, program.BlockID{}, 7)
	assert.Equal(t, AlwaysHit, v.Category)
}

func TestClassifyAlwaysMissWhenNeitherMustNorMayHasIt(t *testing.T) {
	must := NewACS(4)
	may := NewACS(4)
	stack := NewPersistenceStack(4)

	v := Classify(&structural.LoopInfo{Enclosing: map[program.BlockID]program.BlockID{}}, nil, must, may, stack, program.BlockID{}, 7)
	assert.Equal(t, AlwaysMiss, v.Category)
}

func TestClassifyNotClassifiedWhenOnlyMayHasItAndNoPersistence(t *testing.T) {
	must := NewACS(4)
	may := NewACS(4).Access(7)
	stack := NewPersistenceStack(4)

	v := Classify(&structural.LoopInfo{Enclosing: map[program.BlockID]program.BlockID{}}, nil, must, may, stack, program.BlockID{}, 7)
	assert.Equal(t, NotClassified, v.Category)
}

func TestClassifyFirstMissWhenPersistentAtEnclosingLoop(t *testing.T) {
	header := program.BlockID{CFG: 0, Block: 1}
	body := program.BlockID{CFG: 0, Block: 2}

	must := NewACS(4)
	may := NewACS(4).Access(7)
	stack := NewPersistenceStack(4)
	stack.EnterLoop()
	stack.Access(7)

	info := &structural.LoopInfo{Enclosing: map[program.BlockID]program.BlockID{body: header}}
	depths := map[program.BlockID]int{header: 1}

	v := Classify(info, depths, must, may, stack, body, 7)
	assert.Equal(t, FirstMiss, v.Category)
	assert.Equal(t, header, v.Header)
}

// loopCFG builds entry -> pre -> header -> {body -> header (back edge),
// after} -> exit, the minimal shape with one natural loop, for persistence
// and loop-depth tests.
func loopCFG(t *testing.T) (cfg *program.CFG, header, body, after program.BlockID) {
	t.Helper()
	cfg = program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	pre := cfg.AddBlock(program.BlockBasic)
	h := cfg.AddBlock(program.BlockBasic)
	b := cfg.AddBlock(program.BlockBasic)
	a := cfg.AddBlock(program.BlockBasic)

	cfg.AddEdge(cfg.Entry, pre.ID, program.EdgeBoth)
	cfg.AddEdge(pre.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, b.ID, program.EdgeTaken)
	cfg.AddEdge(h.ID, a.ID, program.EdgeNotTaken)
	cfg.AddEdge(b.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(a.ID, cfg.Exit, program.EdgeTaken)

	return cfg, h.ID, b.ID, a.ID
}

func TestLoopDepthsAssignsOneToATopLevelLoop(t *testing.T) {
	cfg, header, _, _ := loopCFG(t)
	dom, err := structural.ComputeDominance(cfg)
	require.NoError(t, err)
	info := structural.ComputeLoopInfo(cfg, dom)

	depths := LoopDepths(info)
	assert.Equal(t, 1, depths[header])
}

func TestHeaderAtDepthFindsEnclosingHeaderForBodyBlock(t *testing.T) {
	cfg, header, body, _ := loopCFG(t)
	dom, err := structural.ComputeDominance(cfg)
	require.NoError(t, err)
	info := structural.ComputeLoopInfo(cfg, dom)
	depths := LoopDepths(info)

	got := HeaderAtDepth(info, depths, body, 1)
	assert.Equal(t, header, got)

	assert.False(t, HeaderAtDepth(info, depths, body, 2).IsSet(), "body is not nested two loops deep")
}

func TestAnalyzePersistenceTracksAccessWithinLoopBody(t *testing.T) {
	cfg, header, body, after := loopCFG(t)
	dom, err := structural.ComputeDominance(cfg)
	require.NoError(t, err)
	info := structural.ComputeLoopInfo(cfg, dom)
	depths := LoopDepths(info)

	accessesOf := func(b *program.Block) []uint64 {
		if b.ID == body {
			return []uint64{7}
		}
		return nil
	}

	result := AnalyzePersistence(cfg, info, 4, accessesOf)

	bodyStack := result[body]
	require.NotNil(t, bodyStack)
	assert.Equal(t, depths[header], bodyStack.Depth())
	assert.True(t, bodyStack.PersistentAt(depths[header], 7))

	afterStack := result[after]
	require.NotNil(t, afterStack)
	assert.Equal(t, 0, afterStack.Depth(), "the loop level must be popped once control leaves the loop")
}

func TestMustAndMayConvergeOnStraightLineAccesses(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	a := cfg.AddBlock(program.BlockBasic)
	b := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, a.ID, program.EdgeBoth)
	cfg.AddEdge(a.ID, b.ID, program.EdgeBoth)
	cfg.AddEdge(b.ID, cfg.Exit, program.EdgeTaken)

	accessesOf := func(blk *program.Block) []uint64 {
		switch blk.ID {
		case a.ID:
			return []uint64{1}
		case b.ID:
			return []uint64{1}
		default:
			return nil
		}
	}

	must := Must(cfg, 4, accessesOf)
	may := May(cfg, 4, accessesOf)

	require.Contains(t, must, b.ID)
	assert.True(t, must[b.ID].InCache(1), "tag 1 was just accessed in a and again in b, so it is guaranteed resident")
	assert.True(t, may[b.ID].InCache(1))
}

func TestMustIsConservativeAcrossDivergingPaths(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	c := cfg.AddBlock(program.BlockBasic)
	th := cfg.AddBlock(program.BlockBasic)
	el := cfg.AddBlock(program.BlockBasic)
	j := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, c.ID, program.EdgeBoth)
	cfg.AddEdge(c.ID, th.ID, program.EdgeTaken)
	cfg.AddEdge(c.ID, el.ID, program.EdgeNotTaken)
	cfg.AddEdge(th.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(el.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(j.ID, cfg.Exit, program.EdgeTaken)

	// Only the then-branch accesses tag 1, so it is never guaranteed
	// resident at the join, but it's still possible.
	accessesOf := func(blk *program.Block) []uint64 {
		if blk.ID == th.ID {
			return []uint64{1}
		}
		return nil
	}

	must := Must(cfg, 4, accessesOf)
	may := May(cfg, 4, accessesOf)

	assert.False(t, must[j.ID].InCache(1), "tag 1 was not accessed on the else path, so must-in-cache cannot guarantee it at the join")
	assert.True(t, may[j.ID].InCache(1), "tag 1 was accessed on at least one path, so may-in-cache allows it")
}
