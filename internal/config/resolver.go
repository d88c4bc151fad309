package config

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound matches every NodeNotFoundError.
var ErrNodeNotFound = errors.New("config node not found")

// NodeNotFoundError is returned when a declared config path does not exist.
type NodeNotFoundError struct {
	Path string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("config node not found: %q", e.Path)
}

func (e *NodeNotFoundError) Is(target error) bool {
	return target == ErrNodeNotFound
}

// Resolver maps a qualifier's declared config path to its subtree.
type Resolver struct {
	tree        *Tree
	defaultPath string
}

// NewResolver creates a resolver over tree. Qualifiers that declare no path
// get the subtree at defaultPath (the whole document when defaultPath is "").
func NewResolver(tree *Tree, defaultPath string) *Resolver {
	if tree == nil {
		tree = NewTree(nil)
	}
	return &Resolver{tree: tree, defaultPath: defaultPath}
}

// Tree returns the underlying document.
func (r *Resolver) Tree() *Tree {
	return r.tree
}

// Resolve returns the subtree for path. The default subtree is returned for an
// empty path even if nothing is configured there.
func (r *Resolver) Resolve(path string) (Node, error) {
	if path == "" {
		return r.tree.Node(r.defaultPath), nil
	}
	node := r.tree.Node(path)
	if !node.Exists() {
		return Node{}, &NodeNotFoundError{Path: path}
	}
	return node, nil
}
