// Package gatt models a BLE peripheral's attribute hierarchy
// (application -> services -> characteristics -> descriptors) independently
// of any host stack's object model.
package gatt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind is the variant of an attribute node
type Kind int

const (
	KindApplication Kind = iota
	KindService
	KindCharacteristic
	KindDescriptor
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "application"
	case KindService:
		return "service"
	case KindCharacteristic:
		return "characteristic"
	case KindDescriptor:
		return "descriptor"
	default:
		return "unknown"
	}
}

// pathSegment is the prefix used for a child's path component
func (k Kind) pathSegment() string {
	switch k {
	case KindService:
		return "service"
	case KindCharacteristic:
		return "char"
	case KindDescriptor:
		return "desc"
	default:
		return "node"
	}
}

// parentKind is the only kind a node of kind k may be attached under
func (k Kind) parentKind() (Kind, bool) {
	switch k {
	case KindService:
		return KindApplication, true
	case KindCharacteristic:
		return KindService, true
	case KindDescriptor:
		return KindCharacteristic, true
	default:
		return 0, false
	}
}

// PathSeparator joins a parent path and a child's segment
const PathSeparator = "/"

// Property keys used in attribute property dictionaries
const (
	PropUUID            = "UUID"
	PropPrimary         = "Primary"
	PropService         = "Service"
	PropCharacteristic  = "Characteristic"
	PropCharacteristics = "Characteristics"
	PropDescriptors     = "Descriptors"
	PropFlags           = "Flags"
)

// Node is one attribute in the tree. Children are owned by their parent;
// the parent pointer is a non-owning back reference.
type Node struct {
	kind     Kind
	path     string
	uuid     uuid.UUID
	flags    Flags
	primary  bool
	parent   *Node
	children []*Node
}

// NewApplication creates the root of an attribute tree at the given path
func NewApplication(path string) *Node {
	if path == "" {
		panic("gatt: application path cannot be empty")
	}
	return &Node{kind: KindApplication, path: path}
}

func NewService(u uuid.UUID, primary bool) *Node {
	return &Node{kind: KindService, uuid: u, primary: primary}
}

func NewCharacteristic(u uuid.UUID, flags ...Flag) *Node {
	return &Node{kind: KindCharacteristic, uuid: u, flags: NewFlags(flags...)}
}

func NewDescriptor(u uuid.UUID, flags ...Flag) *Node {
	return &Node{kind: KindDescriptor, uuid: u, flags: NewFlags(flags...)}
}

func (n *Node) Kind() Kind { return n.kind }

// Path is empty until the node is attached to a parent
func (n *Node) Path() string { return n.path }

func (n *Node) UUID() uuid.UUID { return n.uuid }

// Flags returns the node's fixed capability set
func (n *Node) Flags() Flags { return append(Flags(nil), n.flags...) }

func (n *Node) Primary() bool { return n.primary }

func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in insertion order
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// AddChild attaches child under parent and assigns the child's path as the
// parent's path extended by a kind segment and the next sequential index.
func AddChild(parent, child *Node) error {
	if parent == nil || child == nil {
		return &StructureError{Reason: "nil node"}
	}
	if parent.path == "" {
		return &StructureError{Reason: fmt.Sprintf("%s parent is not attached to a tree", parent.kind)}
	}
	want, ok := child.kind.parentKind()
	if !ok || parent.kind != want {
		return &StructureError{
			Path:   parent.path,
			Reason: fmt.Sprintf("a %s cannot own a %s", parent.kind, child.kind),
		}
	}
	if child.parent != nil || child.path != "" {
		return &StructureError{
			Path:   child.path,
			Reason: fmt.Sprintf("%s is already attached", child.kind),
		}
	}
	for p := parent; p != nil; p = p.parent {
		if p == child {
			return &StructureError{Path: parent.path, Reason: "attaching would create a cycle"}
		}
	}

	path := childPath(parent.path, child.kind, len(parent.children))
	for _, existing := range parent.children {
		if existing.path == path {
			return &StructureError{Path: path, Reason: "index already taken"}
		}
	}

	child.path = path
	child.parent = parent
	parent.children = append(parent.children, child)
	return nil
}

func childPath(parentPath string, kind Kind, index int) string {
	segment := kind.pathSegment() + strconv.Itoa(index)
	if strings.HasSuffix(parentPath, PathSeparator) {
		return parentPath + segment
	}
	return parentPath + PathSeparator + segment
}

// Properties builds the node's property dictionary
func (n *Node) Properties() *Dict {
	props := NewDict()
	switch n.kind {
	case KindService:
		props.Set(PropUUID, String(n.uuid.String()))
		props.Set(PropPrimary, Bool(n.primary))
		props.Set(PropCharacteristics, Paths(n.childPaths()))
	case KindCharacteristic:
		props.Set(PropService, Path(n.parentPath()))
		props.Set(PropUUID, String(n.uuid.String()))
		props.Set(PropFlags, Strings(n.flags.Strings()))
		props.Set(PropDescriptors, Paths(n.childPaths()))
	case KindDescriptor:
		props.Set(PropCharacteristic, Path(n.parentPath()))
		props.Set(PropUUID, String(n.uuid.String()))
		props.Set(PropFlags, Strings(n.flags.Strings()))
	}
	return props
}

func (n *Node) childPaths() []string {
	paths := make([]string, 0, len(n.children))
	for _, c := range n.children {
		paths = append(paths, c.path)
	}
	return paths
}

func (n *Node) parentPath() string {
	if n.parent == nil {
		return ""
	}
	return n.parent.path
}

// ManagedObject pairs an attribute path with its property dictionary
type ManagedObject struct {
	Path       string
	Kind       Kind
	Properties *Dict
}

// CollectManagedObjects walks the tree rooted at root, parents before
// children and children in insertion order. The application root itself is
// a container and is not reported. The traversal does not modify the tree.
func CollectManagedObjects(root *Node) []ManagedObject {
	var objects []ManagedObject
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.kind != KindApplication {
			objects = append(objects, ManagedObject{Path: n.path, Kind: n.kind, Properties: n.Properties()})
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return objects
}

// Find returns the attached node with the given path, searching from root
func Find(root *Node, path string) (*Node, bool) {
	if root == nil {
		return nil, false
	}
	if root.path == path {
		return root, true
	}
	for _, c := range root.children {
		if n, ok := Find(c, path); ok {
			return n, true
		}
	}
	return nil, false
}
