package model

import (
	"fmt"
	"math/rand"
	"sort"
)

// Node is one split or leaf of a regression tree. Leaves have Feature set to -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART regression tree stored as a flat node slice; node 0 is the root
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// predictRow walks the tree for one feature row
func (t *Tree) predictRow(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks that every split references a known feature and points forward to
// nodes inside the tree, so predictRow always reaches a leaf
func (t *Tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= features {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, features)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d has child %d outside (%d, %d)", i, child, i, len(t.Nodes))
			}
		}
	}
	return nil
}

// treeBuilder grows one tree over column-major training data
type treeBuilder struct {
	cols     [][]float64
	y        []float64
	maxDepth int
	minSplit int
	minLeaf  int
	nodes    []Node
}

// growTree fits a tree on the bootstrap sample idx
func growTree(cols [][]float64, y []float64, idx []int, p ForestParams) *Tree {
	b := &treeBuilder{
		cols:     cols,
		y:        y,
		maxDepth: p.MaxDepth,
		minSplit: p.MinSamplesSplit,
		minLeaf:  p.MinSamplesLeaf,
	}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: sum / float64(len(idx))})

	if depth >= b.maxDepth || len(idx) < b.minSplit || b.pure(idx) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.cols[feature][i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit finds the split minimizing the summed squared error of both children.
// Minimizing SSE is the same as maximizing sumL²/nL + sumR²/nR.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	bestScore := parent
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, n)
	for f, col := range b.cols {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += b.y[sorted[k-1]]
			lo, hi := col[sorted[k-1]], col[sorted[k]]
			if lo == hi || k < b.minLeaf || n-k < b.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			if score > bestScore+1e-12 {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// bootstrap draws n row indices with replacement
func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}
