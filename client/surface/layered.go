package surface

// Layered ranks nodes by longest path from a source and spreads each rank
// across the cross axis.
type Layered struct {
	nodeSize      float64
	spacingFactor float64
}

// NewLayered creates the layout.
func NewLayered(nodeSize, spacingFactor float64) *Layered {
	return &Layered{nodeSize: nodeSize, spacingFactor: spacingFactor}
}

// Place implements Layout. Nodes on a cycle are ranked after their
// acyclic predecessors.
func (l *Layered) Place(nodes []string, edges [][2]string, direction Direction) map[string]Point {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}
	indegree := make(map[string]int, len(nodes))
	next := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if !known[e[0]] || !known[e[1]] || e[0] == e[1] {
			continue
		}
		next[e[0]] = append(next[e[0]], e[1])
		indegree[e[1]]++
	}

	rank := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))
	for _, id := range nodes {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	done := make(map[string]bool, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		done[id] = true
		for _, to := range next[id] {
			if rank[id]+1 > rank[to] {
				rank[to] = rank[id] + 1
			}
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	maxRank := 0
	for _, r := range rank {
		maxRank = max(maxRank, r)
	}
	for _, id := range nodes {
		if !done[id] {
			maxRank++
			rank[id] = maxRank
		}
	}

	step := l.nodeSize * l.spacingFactor
	slot := make(map[int]int)
	out := make(map[string]Point, len(nodes))
	for _, id := range nodes {
		r := rank[id]
		along := float64(r) * step
		across := float64(slot[r]) * step
		slot[r]++
		if direction == DirectionLR {
			out[id] = Point{X: along, Y: across}
		} else {
			out[id] = Point{X: across, Y: along}
		}
	}
	return out
}
