// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// FieldList is implemented by result element types to declare which
// file attributes the daemon should populate. The field list travels
// in the request; the daemon returns one map per file carrying exactly
// those keys, which decodes into the implementing struct.
//
// Callers define their own selections by declaring a struct whose
// cbor tags name daemon fields and returning those names:
//
//	type nameAndSHA struct {
//		Name string `cbor:"name"`
//		SHA  string `cbor:"content.sha1hex"`
//	}
//
//	func (nameAndSHA) FieldList() []string {
//		return []string{"name", "content.sha1hex"}
//	}
type FieldList interface {
	FieldList() []string
}

// NameOnly selects just the file name, relative to the query root.
// The cheapest selection; Glob uses it internally.
type NameOnly struct {
	Name string `cbor:"name"`
}

// FieldList implements FieldList.
func (NameOnly) FieldList() []string { return []string{"name"} }

// NameAndMTime selects the file name and modification time.
type NameAndMTime struct {
	Name string `cbor:"name"`

	// MTime is seconds since the epoch.
	MTime int64 `cbor:"mtime"`
}

// FieldList implements FieldList.
func (NameAndMTime) FieldList() []string { return []string{"name", "mtime"} }

// FileStatus selects the attributes most change-processing tools need.
type FileStatus struct {
	Name string `cbor:"name"`

	// Exists is false for files reported because they were deleted.
	Exists bool `cbor:"exists"`

	// New is true the first time a file is reported after creation or
	// after it re-entered the watched set.
	New bool `cbor:"new"`

	// Size is the file size in bytes.
	Size int64 `cbor:"size"`

	// MTime is seconds since the epoch.
	MTime int64 `cbor:"mtime"`

	// Type is the filesystem type code (see the Type* constants).
	Type string `cbor:"type"`
}

// FieldList implements FieldList.
func (FileStatus) FieldList() []string {
	return []string{"name", "exists", "new", "size", "mtime", "type"}
}
