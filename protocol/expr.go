// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "github.com/vigilwatch/vigil-go/lib/codec"

// Expr is a query expression term. On the wire a term is either a bare
// string ("exists") or an array whose first element names the operator
// (["suffix", "go"]). Compose terms with the constructor functions in
// this file; the zero Expr is invalid and must not be sent.
type Expr struct {
	term any
}

// MarshalCBOR encodes the underlying term.
func (e Expr) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(e.term)
}

func term(parts ...any) *Expr {
	return &Expr{term: parts}
}

func bare(name string) *Expr {
	return &Expr{term: name}
}

// True matches every file.
func True() *Expr { return bare("true") }

// False matches no file.
func False() *Expr { return bare("false") }

// Exists matches files that currently exist.
func Exists() *Expr { return bare("exists") }

// Empty matches zero-length files and empty directories.
func Empty() *Expr { return bare("empty") }

// AllOf matches files satisfying every sub-term.
func AllOf(terms ...*Expr) *Expr {
	parts := []any{"allof"}
	for _, t := range terms {
		parts = append(parts, *t)
	}
	return &Expr{term: parts}
}

// AnyOf matches files satisfying at least one sub-term.
func AnyOf(terms ...*Expr) *Expr {
	parts := []any{"anyof"}
	for _, t := range terms {
		parts = append(parts, *t)
	}
	return &Expr{term: parts}
}

// Not inverts a term.
func Not(t *Expr) *Expr { return term("not", *t) }

// Suffix matches files whose name ends in "." followed by any of the
// given suffixes (without the dot).
func Suffix(suffixes ...string) *Expr {
	if len(suffixes) == 1 {
		return term("suffix", suffixes[0])
	}
	return term("suffix", suffixes)
}

// Name matches files whose base name equals any of the given names,
// case-sensitively. IName is the case-insensitive variant.
func Name(names ...string) *Expr  { return nameTerm("name", names) }
func IName(names ...string) *Expr { return nameTerm("iname", names) }

func nameTerm(operator string, names []string) *Expr {
	if len(names) == 1 {
		return term(operator, names[0])
	}
	return term(operator, names)
}

// Match matches the path relative to the root against a glob pattern,
// case-sensitively. IMatch is the case-insensitive variant.
func Match(pattern string) *Expr  { return term("match", pattern, "wholename") }
func IMatch(pattern string) *Expr { return term("imatch", pattern, "wholename") }

// Dirname matches files at any depth below the given directory,
// case-sensitively. IDirname is the case-insensitive variant.
func Dirname(path string) *Expr  { return term("dirname", path) }
func IDirname(path string) *Expr { return term("idirname", path) }

// Since matches files changed after the given clock.
func Since(clock ClockSpec) *Expr { return term("since", clock) }

// Size comparison operators for the size term.
const (
	SizeEqual          = "eq"
	SizeNotEqual       = "ne"
	SizeGreater        = "gt"
	SizeGreaterOrEqual = "ge"
	SizeLess           = "lt"
	SizeLessOrEqual    = "le"
)

// Size matches files whose size satisfies the comparison, e.g.
// Size(SizeGreater, 1<<20) for files over a megabyte.
func Size(operator string, bytes uint64) *Expr {
	return term("size", operator, bytes)
}

// File type codes for the Type term, matching the "type" result field.
const (
	TypeRegular     = "f"
	TypeDirectory   = "d"
	TypeSymlink     = "l"
	TypeBlockDevice = "b"
	TypeCharDevice  = "c"
	TypeFIFO        = "p"
	TypeSocket      = "s"
)

// Type matches files of the given filesystem type.
func Type(code string) *Expr { return term("type", code) }
