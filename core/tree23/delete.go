package tree23

// delResult is the outcome of removing a key from a subtree.
//
// When hole is false, node is the (possibly path-copied) replacement for the
// subtree, at the same depth as before.
//
// When hole is true, the subtree at this position vanished: node is nil if
// it was a leaf holding a single key (nothing survives), or the one
// surviving child of an internal node that collapsed after a merge one
// level down (node is then a complete, valid, merely one-level-shallower
// subtree that the parent must splice in directly). The immediate parent is
// responsible for resolving the hole by rotating a key in from a sibling or
// merging with one, per spec.md §4.A.
type delResult[V any] struct {
	node  *node[V]
	hole  bool
	val   V
	found bool
}

// remove deletes key from the subtree rooted at nd, if present.
func remove[V any](nd *node[V], key int64) delResult[V] {
	if nd == nil {
		return delResult[V]{found: false}
	}
	if nd.kids[0] == nil {
		return removeLeaf(nd, key)
	}
	return removeInternal(nd, key)
}

func removeLeaf[V any](nd *node[V], key int64) delResult[V] {
	idx := -1
	for j := 0; j < nd.n; j++ {
		if nd.keys[j] == key {
			idx = j
			break
		}
	}
	if idx == -1 {
		return delResult[V]{node: nd, found: false}
	}
	val := nd.vals[idx]
	if nd.n == 2 {
		other := 1 - idx
		newLeaf := &node[V]{n: 1, sz: 1}
		newLeaf.keys[0] = nd.keys[other]
		newLeaf.vals[0] = nd.vals[other]
		return delResult[V]{node: newLeaf, hole: false, val: val, found: true}
	}
	return delResult[V]{node: nil, hole: true, val: val, found: true}
}

func removeInternal[V any](nd *node[V], key int64) delResult[V] {
	matchIdx := -1
	for j := 0; j < nd.n; j++ {
		if nd.keys[j] == key {
			matchIdx = j
			break
		}
	}
	self := &node[V]{n: nd.n, keys: nd.keys, vals: nd.vals, kids: nd.kids, sz: nd.sz}

	if matchIdx >= 0 {
		origVal := nd.vals[matchIdx]
		predKey, predVal, _ := maxKeyVal(nd.kids[matchIdx])
		self.keys[matchIdx] = predKey
		self.vals[matchIdx] = predVal
		childRes := remove(nd.kids[matchIdx], predKey)
		res := fixup(self, matchIdx, childRes)
		res.val = origVal
		res.found = true
		return res
	}

	childIdx := 0
	for childIdx < nd.n && key > nd.keys[childIdx] {
		childIdx++
	}
	childRes := remove(nd.kids[childIdx], key)
	if !childRes.found {
		return delResult[V]{node: nd, found: false}
	}
	res := fixup(self, childIdx, childRes)
	res.val = childRes.val
	res.found = true
	return res
}

// maxKeyVal returns the largest (key, value) pair in the subtree.
func maxKeyVal[V any](nd *node[V]) (int64, V, bool) {
	var zero V
	if nd == nil {
		return 0, zero, false
	}
	for nd.kids[0] != nil {
		nd = nd.kids[nd.n]
	}
	return nd.keys[nd.n-1], nd.vals[nd.n-1], true
}

// fixup absorbs childRes at self.kids[childIdx], resolving a hole via
// rotation or merge with an adjacent sibling. self is a fresh, mutable copy
// (not yet exposed outside this call) of the node being fixed up.
func fixup[V any](self *node[V], childIdx int, childRes delResult[V]) delResult[V] {
	if !childRes.hole {
		self.kids[childIdx] = childRes.node
		self.recomputeSize()
		return delResult[V]{node: self, hole: false}
	}
	survivor := childRes.node

	if childIdx < self.n {
		// Right sibling exists.
		rightSib := self.kids[childIdx+1]
		internal := rightSib.kids[0] != nil
		if rightSib.n == 2 {
			newChild := &node[V]{n: 1}
			newChild.keys[0], newChild.vals[0] = self.keys[childIdx], self.vals[childIdx]
			if internal {
				newChild.kids[0], newChild.kids[1] = survivor, rightSib.kids[0]
			}
			newChild.recomputeSize()

			newRightSib := &node[V]{n: 1}
			newRightSib.keys[0], newRightSib.vals[0] = rightSib.keys[1], rightSib.vals[1]
			if internal {
				newRightSib.kids[0], newRightSib.kids[1] = rightSib.kids[1], rightSib.kids[2]
			}
			newRightSib.recomputeSize()

			self.keys[childIdx], self.vals[childIdx] = rightSib.keys[0], rightSib.vals[0]
			self.kids[childIdx] = newChild
			self.kids[childIdx+1] = newRightSib
			self.recomputeSize()
			return delResult[V]{node: self, hole: false}
		}
		merged := &node[V]{n: 2}
		merged.keys[0], merged.vals[0] = self.keys[childIdx], self.vals[childIdx]
		merged.keys[1], merged.vals[1] = rightSib.keys[0], rightSib.vals[0]
		if internal {
			merged.kids[0], merged.kids[1], merged.kids[2] = survivor, rightSib.kids[0], rightSib.kids[1]
		}
		merged.recomputeSize()
		return shrinkAfterMerge(self, childIdx, merged)
	}

	// Use left sibling.
	leftIdx := childIdx - 1
	leftSib := self.kids[leftIdx]
	internal := leftSib.kids[0] != nil
	if leftSib.n == 2 {
		newChild := &node[V]{n: 1}
		newChild.keys[0], newChild.vals[0] = self.keys[leftIdx], self.vals[leftIdx]
		if internal {
			newChild.kids[0], newChild.kids[1] = leftSib.kids[2], survivor
		}
		newChild.recomputeSize()

		newLeftSib := &node[V]{n: 1}
		newLeftSib.keys[0], newLeftSib.vals[0] = leftSib.keys[0], leftSib.vals[0]
		if internal {
			newLeftSib.kids[0], newLeftSib.kids[1] = leftSib.kids[0], leftSib.kids[1]
		}
		newLeftSib.recomputeSize()

		self.keys[leftIdx], self.vals[leftIdx] = leftSib.keys[1], leftSib.vals[1]
		self.kids[leftIdx] = newLeftSib
		self.kids[childIdx] = newChild
		self.recomputeSize()
		return delResult[V]{node: self, hole: false}
	}
	merged := &node[V]{n: 2}
	merged.keys[0], merged.vals[0] = leftSib.keys[0], leftSib.vals[0]
	merged.keys[1], merged.vals[1] = self.keys[leftIdx], self.vals[leftIdx]
	if internal {
		merged.kids[0], merged.kids[1], merged.kids[2] = leftSib.kids[0], leftSib.kids[1], survivor
	}
	merged.recomputeSize()
	return shrinkAfterMerge(self, leftIdx, merged)
}

// shrinkAfterMerge removes the key at mergeKeyIdx from self (self.n is 1 or
// 2) and splices merged in to replace the two children that straddled it.
func shrinkAfterMerge[V any](self *node[V], mergeKeyIdx int, merged *node[V]) delResult[V] {
	if self.n == 2 {
		newSelf := &node[V]{n: 1}
		if mergeKeyIdx == 0 {
			newSelf.keys[0], newSelf.vals[0] = self.keys[1], self.vals[1]
			newSelf.kids[0], newSelf.kids[1] = merged, self.kids[2]
		} else {
			newSelf.keys[0], newSelf.vals[0] = self.keys[0], self.vals[0]
			newSelf.kids[0], newSelf.kids[1] = self.kids[0], merged
		}
		newSelf.recomputeSize()
		return delResult[V]{node: newSelf, hole: false}
	}
	// self.n == 1: the merge consumes self's only key; self collapses.
	return delResult[V]{node: merged, hole: true}
}

// rootRemove applies remove at the root, shrinking the tree's height by one
// when the root collapses after a merge.
func rootRemove[V any](root *node[V], key int64) (*node[V], V, bool) {
	res := remove(root, key)
	if !res.found {
		var zero V
		return root, zero, false
	}
	return res.node, res.val, true
}
