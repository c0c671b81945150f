package graph

import (
	"math/rand"
	"sort"
)

// Ranked is a node paired with an analytics score.
type Ranked struct {
	Name        string
	Type        string
	Description string

	// Centrality is the normalized score of the ranking metric (degree or
	// betweenness centrality depending on the query).
	Centrality float64

	// Degree is the raw edge count of the node.
	Degree int
}

// HotTopics returns up to limit nodes ranked by descending degree centrality
// (degree / (n-1)). These are the most densely connected entities — the
// subjects the memory knows most about.
func (g *Graph) HotTopics(limit int) []Ranked {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.nodes)
	if n == 0 {
		return []Ranked{}
	}

	norm := 1.0
	if n > 1 {
		norm = 1.0 / float64(n-1)
	}

	ranked := make([]Ranked, 0, n)
	for name, a := range g.nodes {
		deg := len(g.adj[name])
		ranked = append(ranked, Ranked{
			Name:        name,
			Type:        a.nodeType,
			Description: a.description,
			Centrality:  float64(deg) * norm,
			Degree:      deg,
		})
	}
	sortRanked(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Connectors returns up to limit nodes ranked by descending betweenness
// centrality — the entities that bridge otherwise separate regions of the
// graph. sampleK > 0 enables pivot sampling (Brandes approximation over
// sampleK randomly chosen sources, scaled back up), which bounds the cost on
// large graphs; a sampleK of zero or ≥ node count computes the exact value.
func (g *Graph) Connectors(limit, sampleK int) []Ranked {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.nodes)
	if n == 0 {
		return []Ranked{}
	}

	names := make([]string, 0, n)
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := names
	scale := 1.0
	if sampleK > 0 && sampleK < n {
		perm := rand.Perm(n)
		sources = make([]string, sampleK)
		for i := 0; i < sampleK; i++ {
			sources[i] = names[perm[i]]
		}
		scale = float64(n) / float64(sampleK)
	}

	score := g.brandesLocked(sources)

	// Halve the raw scores (each shortest path is accumulated from both
	// endpoints in an undirected graph), scale up for sampling, then
	// normalize by the number of node pairs excluding the node itself.
	norm := scale / 2
	if n > 2 {
		norm *= 2.0 / (float64(n-1) * float64(n-2))
	}
	for name := range score {
		score[name] *= norm
	}

	ranked := make([]Ranked, 0, n)
	for _, name := range names {
		a := g.nodes[name]
		ranked = append(ranked, Ranked{
			Name:        name,
			Type:        a.nodeType,
			Description: a.description,
			Centrality:  score[name],
			Degree:      len(g.adj[name]),
		})
	}
	sortRanked(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// brandesLocked runs Brandes' betweenness accumulation from the given source
// nodes and returns the per-node raw scores (each path counted from both
// endpoints, so callers halve for undirected normalization).
func (g *Graph) brandesLocked(sources []string) map[string]float64 {
	score := make(map[string]float64, len(g.nodes))
	for name := range g.nodes {
		score[name] = 0
	}

	for _, s := range sources {
		// Single-source shortest paths (unweighted BFS).
		var stack []string
		pred := make(map[string][]string)
		sigma := map[string]float64{s: 1}
		dist := map[string]int{s: 0}
		queue := []string{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, nb := range g.neighborsLocked(v) {
				w := nb.Name
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		// Dependency accumulation in reverse BFS order.
		delta := make(map[string]float64)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				score[w] += delta[w]
			}
		}
	}
	return score
}

// KnowledgeGaps returns up to limit nodes with degree ≤ maxDegree, lowest
// degree first — stub entities that would benefit from expansion. The graph
// must contain at least minNodes nodes for the analysis to be meaningful;
// below that an empty slice is returned.
func (g *Graph) KnowledgeGaps(limit, maxDegree, minNodes int) []Ranked {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) < minNodes {
		return []Ranked{}
	}

	var gaps []Ranked
	for name, a := range g.nodes {
		deg := len(g.adj[name])
		if deg <= maxDegree {
			gaps = append(gaps, Ranked{
				Name:        name,
				Type:        a.nodeType,
				Description: a.description,
				Degree:      deg,
			})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Degree != gaps[j].Degree {
			return gaps[i].Degree < gaps[j].Degree
		}
		return gaps[i].Name < gaps[j].Name
	})
	if limit > 0 && len(gaps) > limit {
		gaps = gaps[:limit]
	}
	if gaps == nil {
		gaps = []Ranked{}
	}
	return gaps
}

// Communities partitions the graph into clusters by greedy modularity
// maximization. resolution > 1 favours more, smaller communities; < 1 favours
// fewer, larger ones. Graphs without edges cannot be clustered by modularity,
// in which case the result falls back to connected components (each isolated
// node its own community).
func (g *Graph) Communities(resolution float64) [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) < 2 {
		var all []string
		for name := range g.nodes {
			all = append(all, name)
		}
		if all == nil {
			return [][]string{}
		}
		return [][]string{all}
	}

	m := 0
	for _, neighbors := range g.adj {
		m += len(neighbors)
	}
	m /= 2
	if m == 0 {
		return g.componentsLocked()
	}
	if resolution <= 0 {
		resolution = 1.0
	}

	// Greedy agglomeration: every node starts as its own community, then the
	// connected community pair with the best positive modularity gain is
	// merged until no merge improves modularity.
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	comm := make(map[string]int, len(names)) // node → community index
	members := make(map[int][]string)
	degree := make(map[int]float64) // total degree of community
	for i, name := range names {
		comm[name] = i
		members[i] = []string{name}
		degree[i] = float64(len(g.adj[name]))
	}

	// between[a][b] = number of edges between communities a and b (a < b).
	between := make(map[int]map[int]float64)
	addBetween := func(a, b int, w float64) {
		if a > b {
			a, b = b, a
		}
		if between[a] == nil {
			between[a] = make(map[int]float64)
		}
		between[a][b] += w
	}
	for a, neighbors := range g.adj {
		for b := range neighbors {
			if a < b && comm[a] != comm[b] {
				addBetween(comm[a], comm[b], 1)
			}
		}
	}

	m2 := 2 * float64(m)
	for {
		bestGain := 0.0
		bestA, bestB := -1, -1
		for a, row := range between {
			for b, e := range row {
				if e == 0 {
					continue
				}
				gain := e/float64(m) - resolution*2*degree[a]*degree[b]/(m2*m2)
				if gain > bestGain {
					bestGain = gain
					bestA, bestB = a, b
				}
			}
		}
		if bestA < 0 {
			break
		}

		// Merge bestB into bestA.
		members[bestA] = append(members[bestA], members[bestB]...)
		degree[bestA] += degree[bestB]
		delete(members, bestB)
		delete(degree, bestB)
		for _, name := range names {
			if comm[name] == bestB {
				comm[name] = bestA
			}
		}
		// Rebuild the inter-community edge counts touching the merged pair.
		rebuilt := make(map[int]map[int]float64)
		for a, neighbors := range g.adj {
			for b := range neighbors {
				if a < b && comm[a] != comm[b] {
					ca, cb := comm[a], comm[b]
					if ca > cb {
						ca, cb = cb, ca
					}
					if rebuilt[ca] == nil {
						rebuilt[ca] = make(map[int]float64)
					}
					rebuilt[ca][cb]++
				}
			}
		}
		between = rebuilt
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := make([][]string, 0, len(members))
	for _, id := range ids {
		sort.Strings(members[id])
		result = append(result, members[id])
	}
	// Largest communities first.
	sort.SliceStable(result, func(i, j int) bool { return len(result[i]) > len(result[j]) })
	return result
}

// ConnectedComponents returns the node sets of each connected component,
// largest first.
func (g *Graph) ConnectedComponents() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.componentsLocked()
}

func (g *Graph) componentsLocked() [][]string {
	visited := make(map[string]bool, len(g.nodes))
	var result [][]string

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, start := range names {
		if visited[start] {
			continue
		}
		var component []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			component = append(component, v)
			for nb := range g.adj[v] {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		sort.Strings(component)
		result = append(result, component)
	}
	sort.SliceStable(result, func(i, j int) bool { return len(result[i]) > len(result[j]) })
	if result == nil {
		result = [][]string{}
	}
	return result
}

// sortRanked orders by descending centrality, then descending degree, then
// name for stability.
func sortRanked(ranked []Ranked) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Centrality != ranked[j].Centrality {
			return ranked[i].Centrality > ranked[j].Centrality
		}
		if ranked[i].Degree != ranked[j].Degree {
			return ranked[i].Degree > ranked[j].Degree
		}
		return ranked[i].Name < ranked[j].Name
	})
}
