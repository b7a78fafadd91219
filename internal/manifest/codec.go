package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/utils"
	"github.com/openmined/syftvault/internal/version"
)

// FormatVersion is bumped whenever the envelope changes incompatibly.
const FormatVersion = 1

var (
	errEmptyPath  = errors.New("node has empty path")
	errUnsafePath = errors.New("path is not clean")
)

type envelope struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Host      string    `json:"host,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Tree      []node    `json:"tree"`
}

type node struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Hash     string `json:"hash,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Target   string `json:"target,omitempty"`
	Children []node `json:"children,omitempty"`
}

// Marshal serializes tree into the manifest envelope. Nodes are sorted by
// path so identical trees produce identical bytes apart from the header.
func Marshal(tree fsobject.Tree) ([]byte, error) {
	env := envelope{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Host:      utils.HWID,
		Tool:      version.ShortWithApp(),
		Tree:      toNodes(tree),
	}
	return jsonMarshal(env, "", "  ")
}

// Unmarshal parses a manifest produced by Marshal.
func Unmarshal(data []byte) (fsobject.Tree, error) {
	var env envelope
	if err := jsonUnmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", env.Version)
	}
	return fromNodes("", env.Tree)
}

func toNodes(tree fsobject.Tree) []node {
	nodes := make([]node, 0, len(tree))
	for _, k := range tree.Keys() {
		nodes = append(nodes, toNode(tree[k]))
	}
	return nodes
}

func toNode(o fsobject.Object) node {
	n := node{Type: o.Kind().String(), Path: o.Path()}
	switch x := o.(type) {
	case *fsobject.File:
		n.Hash = x.ContentHash()
		n.Size = x.Size()
	case *fsobject.Symlink:
		n.Target = x.Target()
	case *fsobject.Directory:
		n.Children = toNodes(x.Children())
	default:
		panic(fmt.Sprintf("manifest: unknown object type %T", o))
	}
	return n
}

// fromNodes rebuilds one level of the tree. Below the top level every node
// must be a direct child of parent.
func fromNodes(parent string, nodes []node) (fsobject.Tree, error) {
	tree := make(fsobject.Tree, len(nodes))
	for _, n := range nodes {
		if parent != "" && n.Path != "" && path.Dir(n.Path) != parent {
			return nil, fmt.Errorf("node %q is not a child of %q", n.Path, parent)
		}
		o, err := fromNode(n)
		if err != nil {
			return nil, err
		}
		if _, dup := tree[o.Path()]; dup {
			return nil, fmt.Errorf("duplicate path %q", o.Path())
		}
		tree[o.Path()] = o
	}
	return tree, nil
}

func fromNode(n node) (fsobject.Object, error) {
	if n.Path == "" {
		return nil, errEmptyPath
	}
	if err := checkPath(n.Path); err != nil {
		return nil, err
	}
	kind, err := fsobject.ParseKind(n.Type)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", n.Path, err)
	}

	switch kind {
	case fsobject.KindFile:
		if n.Hash == "" {
			return nil, fmt.Errorf("file %q has no content hash", n.Path)
		}
		return fsobject.RestoreFile(n.Path, n.Hash, n.Size), nil
	case fsobject.KindSymlink:
		return fsobject.RestoreSymlink(n.Path, n.Target), nil
	case fsobject.KindDirectory:
		children, err := fromNodes(n.Path, n.Children)
		if err != nil {
			return nil, fmt.Errorf("directory %q: %w", n.Path, err)
		}
		return fsobject.RestoreDirectory(n.Path, children), nil
	default:
		panic(fmt.Sprintf("manifest: unknown kind %v", kind))
	}
}

// checkPath rejects paths that are not in clean form or that climb with
// "..". Restore maps index paths onto the local disk.
func checkPath(p string) error {
	c := p
	if strings.HasPrefix(c, "//") {
		// UNC share
		c = c[1:]
	}
	if path.Clean(c) != c || c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return fmt.Errorf("node %q: %w", p, errUnsafePath)
	}
	return nil
}
