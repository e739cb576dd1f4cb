// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. The daemon byte-compares
// request PDUs in its command cache, so the same logical request must
// always produce identical bytes.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored so that newer daemons can add
// response fields without breaking older clients.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The daemon only ever emits string map keys. When the decode
		// target is any (state metadata, raw query results), the
		// decoder must pick a concrete Go map type; the CBOR default
		// of map[interface{}]interface{} is hostile to everything
		// downstream, so force map[string]any. Struct field decoding
		// is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. It delays decoding of
// schema-dependent payload sections (state metadata, caller-selected
// file fields) until the caller knows the target type.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// contents of data. Used in error messages so that undecodable PDUs
// are reported in readable form rather than as hex dumps.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
