package gatt

import "fmt"

// StructureError reports a malformed attribute tree. It indicates a
// programming error in whoever assembles the tree.
type StructureError struct {
	Path   string
	Reason string
}

func (e *StructureError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("gatt structure error: %s", e.Reason)
	}
	return fmt.Sprintf("gatt structure error at %s: %s", e.Path, e.Reason)
}
