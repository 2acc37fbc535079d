// Package grouping partitions a container fleet into network-coherent groups.
// Each group becomes one output document.
//
// Containers sharing a custom network, directly or through a chain of
// networks, land in the same group; explicit links join groups the same way.
// Containers in host or bridge mode are isolated as singletons.
package grouping

import (
	"cmp"
	"slices"

	"github.com/artpar/d2c/internal/core/domain"
)

// Group is an ordered list of container IDs destined for one document.
type Group []string

// GroupContainers partitions the snapshot's containers. Every container ID
// appears in exactly one group. It never fails; an empty snapshot yields no
// groups.
//
// Group order:
//  1. network components, by the first appearance of their earliest network
//  2. link-only components, by their first member
//  3. one shared group of every remaining non-special container
//  4. one singleton per special container
//
// Members keep input order.
func GroupContainers(snapshot domain.Snapshot) []Group {
	containers := uniqueByID(snapshot.Containers)

	var (
		regular []int // indices of non-special containers
		special []int
	)
	for i, c := range containers {
		if c.IsSpecial() {
			special = append(special, i)
		} else {
			regular = append(regular, i)
		}
	}

	uf := newUnionFind(len(containers))
	placed := make(map[int]bool)

	// Network buckets. Order is first appearance, walking containers in
	// input order and each container's networks by name.
	netOrder := make(map[string]int)
	netFirst := make(map[string]int) // network -> first member index
	for _, i := range regular {
		names := slices.Clone(containers[i].CustomNetworks())
		slices.Sort(names)
		for _, name := range names {
			if _, seen := netOrder[name]; !seen {
				netOrder[name] = len(netOrder)
				netFirst[name] = i
			}
			uf.union(netFirst[name], i)
			placed[i] = true
		}
	}

	// Link edges between non-special containers.
	byName := make(map[string][]int)
	for _, i := range regular {
		name := containers[i].CleanName()
		byName[name] = append(byName[name], i)
	}
	for _, i := range regular {
		if len(containers[i].Links) == 0 {
			continue
		}
		placed[i] = true
		for _, target := range containers[i].LinkTargets() {
			for _, j := range byName[target] {
				uf.union(i, j)
				placed[j] = true
			}
		}
	}

	// Collect components of placed containers.
	type component struct {
		members  []int
		netRank  int // earliest network order, -1 when none
		firstIdx int
	}
	components := make(map[int]*component)
	var roots []int
	for _, i := range regular {
		if !placed[i] {
			continue
		}
		root := uf.find(i)
		comp, ok := components[root]
		if !ok {
			comp = &component{netRank: -1, firstIdx: i}
			components[root] = comp
			roots = append(roots, root)
		}
		comp.members = append(comp.members, i)
		for _, name := range containers[i].CustomNetworks() {
			if rank := netOrder[name]; comp.netRank == -1 || rank < comp.netRank {
				comp.netRank = rank
			}
		}
	}

	slices.SortFunc(roots, func(a, b int) int {
		ca, cb := components[a], components[b]
		switch {
		case ca.netRank >= 0 && cb.netRank >= 0:
			return cmp.Compare(ca.netRank, cb.netRank)
		case ca.netRank >= 0:
			return -1
		case cb.netRank >= 0:
			return 1
		default:
			return cmp.Compare(ca.firstIdx, cb.firstIdx)
		}
	})

	groups := make([]Group, 0, len(roots)+len(special)+1)
	for _, root := range roots {
		groups = append(groups, idsOf(containers, components[root].members))
	}

	var leftover []int
	for _, i := range regular {
		if !placed[i] {
			leftover = append(leftover, i)
		}
	}
	if len(leftover) > 0 {
		groups = append(groups, idsOf(containers, leftover))
	}

	for _, i := range special {
		groups = append(groups, Group{containers[i].ID})
	}
	return groups
}

// uniqueByID drops records repeating an earlier ID.
func uniqueByID(containers []domain.ContainerRecord) []domain.ContainerRecord {
	seen := make(map[string]bool, len(containers))
	out := make([]domain.ContainerRecord, 0, len(containers))
	for _, c := range containers {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func idsOf(containers []domain.ContainerRecord, indices []int) Group {
	g := make(Group, 0, len(indices))
	for _, i := range indices {
		g = append(g, containers[i].ID)
	}
	return g
}

// =============================================================================
// Union-Find
// =============================================================================

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
