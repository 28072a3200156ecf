package manager

import (
	"github.com/odvcencio/graphstate/pkg/object"
)

// component is one strongly connected component of the reference graph.
// cyclic is set for components with more than one member or a self
// reference.
type component struct {
	ids    []object.ObjectID
	cyclic bool
}

// components returns the strongly connected components of the graph over
// nodes, referenced ids first: every component comes after the components
// it references. Edges leaving nodes are ignored. The traversal is an
// iterative Tarjan so deep chains do not grow the goroutine stack.
func components(nodes []object.ObjectID, edges func(object.ObjectID) []object.ObjectID) []component {
	inGraph := make(map[object.ObjectID]struct{}, len(nodes))
	for _, id := range nodes {
		inGraph[id] = struct{}{}
	}
	succ := func(id object.ObjectID) []object.ObjectID {
		var out []object.ObjectID
		for _, to := range edges(id) {
			if _, ok := inGraph[to]; ok {
				out = append(out, to)
			}
		}
		return out
	}

	type frame struct {
		id   object.ObjectID
		succ []object.ObjectID
		next int
	}
	var (
		counter int
		index   = make(map[object.ObjectID]int, len(nodes))
		low     = make(map[object.ObjectID]int, len(nodes))
		onStack = make(map[object.ObjectID]bool, len(nodes))
		stack   []object.ObjectID
		out     []component
	)
	visit := func(id object.ObjectID) frame {
		index[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true
		return frame{id: id, succ: succ(id)}
	}

	for _, root := range nodes {
		if _, done := index[root]; done {
			continue
		}
		call := []frame{visit(root)}
		for len(call) > 0 {
			top := &call[len(call)-1]
			if top.next < len(top.succ) {
				to := top.succ[top.next]
				top.next++
				if _, seen := index[to]; !seen {
					call = append(call, visit(to))
				} else if onStack[to] && index[to] < low[top.id] {
					low[top.id] = index[to]
				}
				continue
			}

			id := top.id
			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].id
				if low[id] < low[parent] {
					low[parent] = low[id]
				}
			}
			if low[id] != index[id] {
				continue
			}

			var c component
			for {
				n := len(stack) - 1
				member := stack[n]
				stack = stack[:n]
				onStack[member] = false
				c.ids = append(c.ids, member)
				if member == id {
					break
				}
			}
			sortIDs(c.ids)
			c.cyclic = len(c.ids) > 1
			if !c.cyclic {
				for _, to := range edges(id) {
					if to == id {
						c.cyclic = true
						break
					}
				}
			}
			out = append(out, c)
		}
	}
	return out
}
