package normalization

import (
	"reflect"
	"sort"
)

// maxVisited caps the breadth-first walk for very wide payloads.
const maxVisited = 10000

type searchNode struct {
	v     any
	depth int
}

// findLevels does a breadth-first walk of root and returns the shallowest
// object holding a levels key. An object counts when it sits at most maxDepth
// container hops below root. Shared or cyclic containers are visited once.
func findLevels(root any, maxDepth int) (map[string]any, bool) {
	seen := map[uintptr]bool{}
	queue := []searchNode{{v: root}}
	visited := 0

	for len(queue) > 0 && visited < maxVisited {
		cur := queue[0]
		queue = queue[1:]
		visited++

		if cur.depth > maxDepth {
			continue
		}
		if id, ok := containerID(cur.v); ok {
			if seen[id] {
				continue
			}
			seen[id] = true
		}

		switch t := cur.v.(type) {
		case map[string]any:
			if _, ok := t[levelsKey]; ok && cur.depth > 0 {
				return t, true
			}
			for _, k := range sortedKeys(t) {
				if isContainer(t[k]) {
					queue = append(queue, searchNode{v: t[k], depth: cur.depth + 1})
				}
			}
		case []any:
			for _, child := range t {
				if isContainer(child) {
					queue = append(queue, searchNode{v: child, depth: cur.depth + 1})
				}
			}
		}
	}
	return nil, false
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func containerID(v any) (uintptr, bool) {
	switch v.(type) {
	case map[string]any:
		return reflect.ValueOf(v).Pointer(), true
	case []any:
		rv := reflect.ValueOf(v)
		if rv.Len() == 0 {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
