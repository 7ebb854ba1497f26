package tree23

// overflow describes a node that split while inserting: left and right are
// the two halves and (midKey, midVal) is the key promoted to the parent.
type overflow[V any] struct {
	left   *node[V]
	midKey int64
	midVal V
	right  *node[V]
}

// insert returns either (newChild, nil) — the direct, path-copied
// replacement for nd — or (nil, ovf) when nd split and the caller (its
// parent) must absorb the promoted key.
func insert[V any](nd *node[V], key int64, val V) (*node[V], *overflow[V]) {
	if nd == nil {
		leaf := &node[V]{n: 1}
		leaf.keys[0] = key
		leaf.vals[0] = val
		leaf.sz = 1
		return leaf, nil
	}
	if nd.kids[0] == nil {
		return insertLeaf(nd, key, val)
	}
	return insertInternal(nd, key, val)
}

func insertLeaf[V any](nd *node[V], key int64, val V) (*node[V], *overflow[V]) {
	for i := 0; i < nd.n; i++ {
		if nd.keys[i] == key {
			newNode := &node[V]{n: nd.n, keys: nd.keys, vals: nd.vals, sz: nd.sz}
			newNode.vals[i] = val
			return newNode, nil
		}
	}
	if nd.n == 1 {
		newNode := &node[V]{n: 2, sz: 2}
		if key < nd.keys[0] {
			newNode.keys = [2]int64{key, nd.keys[0]}
			newNode.vals = [2]V{val, nd.vals[0]}
		} else {
			newNode.keys = [2]int64{nd.keys[0], key}
			newNode.vals = [2]V{nd.vals[0], val}
		}
		return newNode, nil
	}
	// nd.n == 2: leaf overflow, split into two 1-key leaves and promote the
	// middle entry.
	type kv struct {
		k int64
		v V
	}
	items := [3]kv{{nd.keys[0], nd.vals[0]}, {nd.keys[1], nd.vals[1]}, {key, val}}
	// insertion sort (3 elements)
	for i := 1; i < 3; i++ {
		j := i
		for j > 0 && items[j-1].k > items[j].k {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
	left := &node[V]{n: 1, sz: 1}
	left.keys[0] = items[0].k
	left.vals[0] = items[0].v
	right := &node[V]{n: 1, sz: 1}
	right.keys[0] = items[2].k
	right.vals[0] = items[2].v
	return nil, &overflow[V]{left: left, midKey: items[1].k, midVal: items[1].v, right: right}
}

func insertInternal[V any](nd *node[V], key int64, val V) (*node[V], *overflow[V]) {
	for i := 0; i < nd.n; i++ {
		if nd.keys[i] == key {
			newNode := &node[V]{n: nd.n, keys: nd.keys, vals: nd.vals, kids: nd.kids, sz: nd.sz}
			newNode.vals[i] = val
			return newNode, nil
		}
	}
	i := 0
	for i < nd.n && key > nd.keys[i] {
		i++
	}
	child, ovf := insert(nd.kids[i], key, val)
	if ovf == nil {
		newNode := &node[V]{n: nd.n, keys: nd.keys, vals: nd.vals, kids: nd.kids}
		newNode.kids[i] = child
		newNode.recomputeSize()
		return newNode, nil
	}
	if nd.n == 1 {
		newNode := &node[V]{n: 2}
		if i == 0 {
			newNode.keys = [2]int64{ovf.midKey, nd.keys[0]}
			newNode.vals = [2]V{ovf.midVal, nd.vals[0]}
			newNode.kids = [3]*node[V]{ovf.left, ovf.right, nd.kids[1]}
		} else {
			newNode.keys = [2]int64{nd.keys[0], ovf.midKey}
			newNode.vals = [2]V{nd.vals[0], ovf.midVal}
			newNode.kids = [3]*node[V]{nd.kids[0], ovf.left, ovf.right}
		}
		newNode.recomputeSize()
		return newNode, nil
	}
	// nd.n == 2: internal overflow — build a temporary 4-node then split it.
	var tKeys [3]int64
	var tVals [3]V
	var tKids [4]*node[V]
	switch i {
	case 0:
		tKeys = [3]int64{ovf.midKey, nd.keys[0], nd.keys[1]}
		tVals = [3]V{ovf.midVal, nd.vals[0], nd.vals[1]}
		tKids = [4]*node[V]{ovf.left, ovf.right, nd.kids[1], nd.kids[2]}
	case 1:
		tKeys = [3]int64{nd.keys[0], ovf.midKey, nd.keys[1]}
		tVals = [3]V{nd.vals[0], ovf.midVal, nd.vals[1]}
		tKids = [4]*node[V]{nd.kids[0], ovf.left, ovf.right, nd.kids[2]}
	default: // 2
		tKeys = [3]int64{nd.keys[0], nd.keys[1], ovf.midKey}
		tVals = [3]V{nd.vals[0], nd.vals[1], ovf.midVal}
		tKids = [4]*node[V]{nd.kids[0], nd.kids[1], ovf.left, ovf.right}
	}
	left := &node[V]{n: 1, kids: [3]*node[V]{tKids[0], tKids[1]}}
	left.keys[0], left.vals[0] = tKeys[0], tVals[0]
	left.recomputeSize()
	right := &node[V]{n: 1, kids: [3]*node[V]{tKids[2], tKids[3]}}
	right.keys[0], right.vals[0] = tKeys[2], tVals[2]
	right.recomputeSize()
	return nil, &overflow[V]{left: left, midKey: tKeys[1], midVal: tVals[1], right: right}
}

// rootInsert applies insert at the root, growing the tree's height by one
// when the root itself splits.
func rootInsert[V any](root *node[V], key int64, val V) *node[V] {
	newRoot, ovf := insert(root, key, val)
	if ovf == nil {
		return newRoot
	}
	top := &node[V]{n: 1, kids: [3]*node[V]{ovf.left, ovf.right}}
	top.keys[0], top.vals[0] = ovf.midKey, ovf.midVal
	top.recomputeSize()
	return top
}
