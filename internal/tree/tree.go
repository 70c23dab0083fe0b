// Package tree turns the flat file list of a ref into a nested directory view.
package tree

import (
	"slices"
	"strings"

	"repohub-backend-go/internal/models"
)

// Build nests paths into directory nodes.
//
// Each cumulative prefix becomes one directory node, created the first time it is seen.
// Every children list is then sorted by name in byte order, files and directories mixed.
// With a non-empty prefix only that node's children are returned; a prefix that matches
// no directory yields an empty list.
func Build(paths []string, prefix string) []*models.TreeNode {
	var roots []*models.TreeNode
	nodes := make(map[string]*models.TreeNode)

	for _, p := range paths {
		segments := splitPath(p)
		if len(segments) == 0 {
			continue
		}
		siblings := &roots
		cumulative := ""
		for i, name := range segments {
			if cumulative == "" {
				cumulative = name
			} else {
				cumulative += "/" + name
			}
			last := i == len(segments)-1

			node, seen := nodes[cumulative]
			if !seen {
				node = &models.TreeNode{Name: name, Path: cumulative, Type: models.NodeDir}
				if last {
					node.Type = models.NodeFile
				}
				nodes[cumulative] = node
				*siblings = append(*siblings, node)
			} else if !last && node.Type == models.NodeFile {
				// The same path was listed as a file before; a deeper path makes it a directory.
				node.Type = models.NodeDir
			}
			siblings = &node.Children
		}
	}

	sortNodes(roots)

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return nonNil(roots)
	}
	node, ok := nodes[prefix]
	if !ok || node.Type != models.NodeDir {
		return []*models.TreeNode{}
	}
	return nonNil(node.Children)
}

// Flatten lists the file paths below nodes in depth-first order.
func Flatten(nodes []*models.TreeNode) []string {
	var out []string
	var walk func([]*models.TreeNode)
	walk = func(level []*models.TreeNode) {
		for _, n := range level {
			if n.Type == models.NodeFile {
				out = append(out, n.Path)
				continue
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

func sortNodes(level []*models.TreeNode) {
	slices.SortFunc(level, func(a, b *models.TreeNode) int {
		return strings.Compare(a.Name, b.Name)
	})
	for _, n := range level {
		if len(n.Children) > 0 {
			sortNodes(n.Children)
		}
	}
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonNil(nodes []*models.TreeNode) []*models.TreeNode {
	if nodes == nil {
		return []*models.TreeNode{}
	}
	return nodes
}
