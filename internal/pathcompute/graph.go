// Package pathcompute implements the Path Computer (spec.md §4.2): shortest
// path by physical length over the undirected multigraph of POPs, with
// first-fit contiguous spectrum assignment across the chosen path. The
// Dijkstra implementation is adapted from katalvlaran-lvlath's
// graph/dijkstra.go (binary-heap priority queue, dist/parent reconstruction
// via container/heap); the POP/link vocabulary and the "path between two
// points" framing follow the teacher's gizmos/switch.go.
package pathcompute

import (
	"container/heap"
	"sort"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

type edge struct {
	linkID     string
	to         string
	distanceKM float64
}

// graph is the undirected multigraph of POPs built fresh for each
// computation from the Resource Store's current link set. Building it is
// lock-free since NetworkLink topology is immutable post-load (spec.md §5).
type graph struct {
	adjacency map[string][]edge
	linkByID  map[string]model.NetworkLink
}

func buildGraph(links []model.NetworkLink) *graph {
	g := &graph{
		adjacency: make(map[string][]edge),
		linkByID:  make(map[string]model.NetworkLink, len(links)),
	}
	for _, l := range links {
		g.linkByID[l.ID] = l
		g.adjacency[l.PopA] = append(g.adjacency[l.PopA], edge{linkID: l.ID, to: l.PopB, distanceKM: l.DistanceKM})
		g.adjacency[l.PopB] = append(g.adjacency[l.PopB], edge{linkID: l.ID, to: l.PopA, distanceKM: l.DistanceKM})
	}
	for pop := range g.adjacency {
		edges := g.adjacency[pop]
		sort.Slice(edges, func(i, j int) bool { return edges[i].linkID < edges[j].linkID })
		g.adjacency[pop] = edges
	}
	return g
}

type pqItem struct {
	pop  string
	dist float64
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}

// hop is one step of the reconstructed shortest path: leaving "from" and
// arriving at "to" over "linkID".
type hop struct {
	linkID string
	from   string
	to     string
}

// shortestPath runs Dijkstra from src to dst, terminating early once dst is
// settled. Ties in total distance are broken by preferring the
// lexicographically smaller link id at each relaxation (spec.md §4.2).
func (g *graph) shortestPath(src, dst string) ([]hop, error) {
	if src == dst {
		return nil, coreerrors.New(coreerrors.InvalidRequest, "shortestPath")
	}

	dist := make(map[string]float64)
	parentLink := make(map[string]string)
	parentPop := make(map[string]string)
	visited := make(map[string]bool)

	dist[src] = 0

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &pqItem{pop: src, dist: 0})

	for pq.Len() > 0 {
		u := heap.Pop(pq).(*pqItem)
		if visited[u.pop] {
			continue
		}
		visited[u.pop] = true

		if u.pop == dst {
			break
		}

		for _, e := range g.adjacency[u.pop] {
			if visited[e.to] {
				continue
			}
			nd := dist[u.pop] + e.distanceKM
			cur, known := dist[e.to]
			better := !known || nd < cur
			tie := known && nd == cur && e.linkID < parentLink[e.to]
			if better || tie {
				dist[e.to] = nd
				parentLink[e.to] = e.linkID
				parentPop[e.to] = u.pop
				heap.Push(pq, &pqItem{pop: e.to, dist: nd})
			}
		}
	}

	if !visited[dst] {
		return nil, coreerrors.New(coreerrors.NoPath, "shortestPath")
	}

	var hops []hop
	cur := dst
	for cur != src {
		from := parentPop[cur]
		hops = append([]hop{{linkID: parentLink[cur], from: from, to: cur}}, hops...)
		cur = from
	}
	return hops, nil
}

func (g *graph) totalDistanceKM(hops []hop) float64 {
	total := 0.0
	for _, h := range hops {
		total += g.linkByID[h.linkID].DistanceKM
	}
	return total
}
