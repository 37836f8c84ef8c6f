package domain

import (
	"path/filepath"
	"strings"
)

// NodeKind distinguishes the three kinds of build artifacts a task can read or write.
type NodeKind uint8

const (
	// NodeKindPath is a concrete file or directory on disk.
	NodeKindPath NodeKind = iota
	// NodeKindVirtual has no filesystem backing and exists only to order tasks.
	NodeKindVirtual
	// NodeKindDirectoryTree stands for the recursive listing of a directory.
	NodeKindDirectoryTree
)

const directoryTreePrefix = "dir:"

// Node identifies something a task reads or writes.
// Nodes are comparable; two nodes with the same kind and name are the same node.
type Node struct {
	kind NodeKind
	name InternedString
}

// PathNode returns the node for a file path. The path is cleaned.
func PathNode(path string) Node {
	return Node{kind: NodeKindPath, name: NewInternedString(filepath.Clean(path))}
}

// VirtualNode returns a synchronization node. Virtual names are always wrapped in angle brackets.
func VirtualNode(name string) Node {
	if !strings.HasPrefix(name, "<") || !strings.HasSuffix(name, ">") {
		name = "<" + name + ">"
	}
	return Node{kind: NodeKindVirtual, name: NewInternedString(name)}
}

// DirectoryTreeNode returns the node for the recursive contents of a directory.
func DirectoryTreeNode(path string) Node {
	return Node{kind: NodeKindDirectoryTree, name: NewInternedString(filepath.Clean(path))}
}

// ParseNode reverses Node.String.
func ParseNode(s string) Node {
	switch {
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return VirtualNode(s)
	case strings.HasPrefix(s, directoryTreePrefix):
		return DirectoryTreeNode(strings.TrimPrefix(s, directoryTreePrefix))
	default:
		return PathNode(s)
	}
}

// Kind returns the node kind.
func (n Node) Kind() NodeKind { return n.kind }

// Name returns the path or virtual name of the node.
func (n Node) Name() string {
	if n.name == (InternedString{}) {
		return ""
	}
	return n.name.String()
}

// IsVirtual reports whether the node has no filesystem backing.
func (n Node) IsVirtual() bool { return n.kind == NodeKindVirtual }

// IsZero reports whether n is the zero Node.
func (n Node) IsZero() bool { return n == Node{} }

// String renders the node in its manifest form.
func (n Node) String() string {
	if n.kind == NodeKindDirectoryTree {
		return directoryTreePrefix + n.Name()
	}
	return n.Name()
}

// CompareNodes orders nodes by kind, then by name.
func CompareNodes(a, b Node) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name(), b.Name())
}
