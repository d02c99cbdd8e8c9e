package structural

import "wcet/internal/program"

// LoopHeaders returns the set of blocks that are loop headers: a block h is
// a loop header iff some edge s→h has h dominating s (a back-edge), per
// spec §4.5.
func LoopHeaders(cfg *program.CFG, dom *DomInfo) map[program.BlockID]bool {
	headers := map[program.BlockID]bool{}
	for _, e := range cfg.Edges {
		if dom.Dominates(e.SinkID, e.SourceID) {
			headers[e.SinkID] = true
		}
	}
	return headers
}

// MarkBackEdges sets EdgeBack on every CFG edge whose sink dominates its
// source and returns them, mutating the CFG's own edge flags in place so
// later passes (and the IPET builder) can read BACK_EDGE straight off the
// edge.
func MarkBackEdges(cfg *program.CFG, dom *DomInfo) []*program.Edge {
	var backEdges []*program.Edge
	for _, e := range cfg.Edges {
		if dom.Dominates(e.SinkID, e.SourceID) {
			e.Flags |= program.EdgeBack
			backEdges = append(backEdges, e)
		}
	}
	return backEdges
}

// LoopInfo is the per-CFG loop vocabulary built on top of dominance: for
// each block, its innermost enclosing loop header; for each loop header,
// the list of edges that exit its loop.
type LoopInfo struct {
	Enclosing map[program.BlockID]program.BlockID   // block -> innermost enclosing header (NoBlockID if none)
	ExitEdges map[program.BlockID][]*program.Edge   // header -> edges leaving the loop
	Bodies    map[program.BlockID]map[program.BlockID]bool // header -> natural-loop body (includes header)
}

// ComputeLoopInfo computes loop headers, natural loop bodies (merging
// bodies of back-edges that share a header), the innermost enclosing
// header per block, and per-header exit-edge lists, marking EdgeLoopExit
// and LoopExitHeader on the CFG's own edges (outermost loop exited when an
// edge leaves more than one nest, per spec §4.5).
func ComputeLoopInfo(cfg *program.CFG, dom *DomInfo) *LoopInfo {
	bodies := map[program.BlockID]map[program.BlockID]bool{}
	for _, e := range cfg.Edges {
		if !dom.Dominates(e.SinkID, e.SourceID) {
			continue
		}
		h := e.SinkID
		body := naturalLoopBody(cfg, h, e.SourceID)
		if bodies[h] == nil {
			bodies[h] = map[program.BlockID]bool{}
		}
		for b := range body {
			bodies[h][b] = true
		}
	}

	enclosing := map[program.BlockID]program.BlockID{}
	for _, id := range dom.Reachable() {
		best := program.NoBlockID
		bestSize := -1
		for h, body := range bodies {
			if body[id] && (bestSize == -1 || len(body) < bestSize) {
				bestSize = len(body)
				best = h
			}
		}
		enclosing[id] = best
	}

	exitEdges := map[program.BlockID][]*program.Edge{}
	for h, body := range bodies {
		for b := range body {
			blk := cfg.BlockAt(b)
			if blk == nil {
				continue
			}
			for _, succID := range blk.Successors() {
				if body[succID] {
					continue
				}
				e := findEdge(cfg, b, succID)
				if e == nil {
					continue
				}
				outer := outermostExited(b, succID, bodies, h)
				if e.HasLoopExitHeader && e.LoopExitHeader == outer {
					continue // already recorded via another header's body walk
				}
				e.Flags |= program.EdgeLoopExit
				e.LoopExitHeader = outer
				e.HasLoopExitHeader = true
			}
		}
	}
	for h, body := range bodies {
		for b := range body {
			blk := cfg.BlockAt(b)
			if blk == nil {
				continue
			}
			for _, e := range cfg.EdgesFrom(b) {
				if e.HasLoopExitHeader && e.LoopExitHeader == h {
					exitEdges[h] = append(exitEdges[h], e)
				}
			}
		}
	}

	return &LoopInfo{Enclosing: enclosing, ExitEdges: exitEdges, Bodies: bodies}
}

// naturalLoopBody computes the natural loop of the back-edge src->header:
// header plus every block that can reach src without passing through
// header.
func naturalLoopBody(cfg *program.CFG, header, src program.BlockID) map[program.BlockID]bool {
	body := map[program.BlockID]bool{header: true}
	if src == header {
		return body
	}
	work := []program.BlockID{src}
	body[src] = true
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]
		blk := cfg.BlockAt(cur)
		if blk == nil {
			continue
		}
		for _, p := range blk.Predecessors() {
			if !body[p] {
				body[p] = true
				work = append(work, p)
			}
		}
	}
	return body
}

// outermostExited picks, among the loop headers whose body contains src but
// not sink, the one with the largest body (the outermost nest exited).
// fallback is returned when no header in bodies qualifies (defensive; the
// caller always passes a header that does qualify).
func outermostExited(src, sink program.BlockID, bodies map[program.BlockID]map[program.BlockID]bool, fallback program.BlockID) program.BlockID {
	best := fallback
	bestSize := -1
	for h, body := range bodies {
		if body[src] && !body[sink] {
			if len(body) > bestSize {
				bestSize = len(body)
				best = h
			}
		}
	}
	return best
}

func findEdge(cfg *program.CFG, src, sink program.BlockID) *program.Edge {
	for _, e := range cfg.EdgesFrom(src) {
		if e.SinkID == sink {
			return e
		}
	}
	return nil
}
