package nav

import (
	"container/heap"
	"math"
)

type openNode struct {
	cell  int
	f     float64
	seq   int // insertion order, breaks f ties deterministically
	index int
}

// openSet is a min-heap on f with decrease-key through node.index.
type openSet []*openNode

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].seq < s[j].seq
}
func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}
func (s *openSet) Push(x any) {
	n := x.(*openNode)
	n.index = len(*s)
	*s = append(*s, n)
}
func (s *openSet) Pop() any {
	old := *s
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*s = old[:len(old)-1]
	return n
}

var neighbors = [8]struct {
	dx, dy int
	cost   float64
}{
	{1, 0, 1}, {-1, 0, 1}, {0, 1, 1}, {0, -1, 1},
	{1, 1, math.Sqrt2}, {1, -1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
}

// astar searches an 8-connected grid from start to goal (row-major cell
// indices). It returns the cell sequence including both ends, or nil when the
// goal is unreachable. The Manhattan heuristic overestimates diagonal moves,
// so results favor speed over strict optimality.
func astar(blocked []bool, width, height, start, goal int) []int {
	if start == goal {
		return []int{start}
	}
	gx, gy := goal%width, goal/width
	h := func(c int) float64 {
		return math.Abs(float64(c%width-gx)) + math.Abs(float64(c/width-gy))
	}

	g := make([]float64, width*height)
	for i := range g {
		g[i] = math.Inf(1)
	}
	parent := make([]int, width*height)
	closed := make([]bool, width*height)
	nodes := make(map[int]*openNode)

	open := &openSet{}
	seq := 0
	g[start] = 0
	parent[start] = -1
	first := &openNode{cell: start, f: h(start), seq: seq}
	nodes[start] = first
	heap.Push(open, first)

	for open.Len() > 0 {
		cur := heap.Pop(open).(*openNode)
		delete(nodes, cur.cell)
		if cur.cell == goal {
			return reconstruct(parent, goal)
		}
		closed[cur.cell] = true
		cx, cy := cur.cell%width, cur.cell/width
		for _, nb := range neighbors {
			nx, ny := cx+nb.dx, cy+nb.dy
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			next := ny*width + nx
			if blocked[next] || closed[next] {
				continue
			}
			tentative := g[cur.cell] + nb.cost
			if tentative >= g[next] {
				continue
			}
			g[next] = tentative
			parent[next] = cur.cell
			f := tentative + h(next)
			if n, ok := nodes[next]; ok {
				n.f = f
				heap.Fix(open, n.index)
				continue
			}
			seq++
			n := &openNode{cell: next, f: f, seq: seq}
			nodes[next] = n
			heap.Push(open, n)
		}
	}
	return nil
}

func reconstruct(parent []int, goal int) []int {
	var rev []int
	for c := goal; c != -1; c = parent[c] {
		rev = append(rev, c)
	}
	out := make([]int, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}
