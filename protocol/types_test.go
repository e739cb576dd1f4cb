// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"testing"
	"time"

	"github.com/vigilwatch/vigil-go/lib/codec"
)

func TestEnvelopeClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		payload        map[string]any
		wantUnilateral bool
	}{
		{
			name:           "subscription push",
			payload:        map[string]any{"unilateral": true, "subscription": "sub-[tail]-1"},
			wantUnilateral: true,
		},
		{
			name:           "plain response",
			payload:        map[string]any{"version": "1.0", "clock": "c:1:2"},
			wantUnilateral: false,
		},
		{
			name:           "unilateral flag without subscription name",
			payload:        map[string]any{"unilateral": true},
			wantUnilateral: false,
		},
		{
			name:           "subscription echo on a response",
			payload:        map[string]any{"subscribe": "sub-[tail]-1", "subscription": "sub-[tail]-1"},
			wantUnilateral: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			data, err := codec.Marshal(test.payload)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var envelope Envelope
			if err := codec.Unmarshal(data, &envelope); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got := envelope.IsUnilateral(); got != test.wantUnilateral {
				t.Errorf("IsUnilateral: got %v, want %v", got, test.wantUnilateral)
			}
		})
	}
}

func TestClockSpecRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		clock ClockSpec
	}{
		{name: "daemon token", clock: NamedClock("c:1700000000:2:3:42")},
		{name: "unix timestamp", clock: UnixTimestampClock(1700000000)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			data, err := codec.Marshal(test.clock)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var decoded ClockSpec
			if err := codec.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if decoded != test.clock {
				t.Errorf("round trip: got %+v, want %+v", decoded, test.clock)
			}
		})
	}
}

func TestClockSpecTokenEncodesAsString(t *testing.T) {
	t.Parallel()
	data, err := codec.Marshal(NamedClock("c:1:2"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var asString string
	if err := codec.Unmarshal(data, &asString); err != nil {
		t.Fatalf("token did not encode as a CBOR text string: %v", err)
	}
	if asString != "c:1:2" {
		t.Errorf("encoded token: got %q, want %q", asString, "c:1:2")
	}
}

func TestSyncTimeoutEncoding(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		timeout SyncTimeout
		wantMS  int64
	}{
		{name: "zero value uses daemon default", timeout: SyncTimeout{}, wantMS: 60000},
		{name: "explicit duration", timeout: SyncTimeoutAfter(1500 * time.Millisecond), wantMS: 1500},
		{name: "no barrier encodes as zero", timeout: NoSyncBarrier(), wantMS: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			data, err := codec.Marshal(test.timeout)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var milliseconds int64
			if err := codec.Unmarshal(data, &milliseconds); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if milliseconds != test.wantMS {
				t.Errorf("milliseconds: got %d, want %d", milliseconds, test.wantMS)
			}
		})
	}
}

func TestRequestShapeIsCommandTaggedArray(t *testing.T) {
	t.Parallel()
	request := []any{CommandQuery, "/repo", QueryParams{
		Glob:   []string{"**/*.txt"},
		Fields: []string{"name"},
	}}
	data, err := codec.Marshal(request)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded []any
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("request arity: got %d, want 3", len(decoded))
	}
	if decoded[0] != CommandQuery {
		t.Errorf("command tag: got %v, want %q", decoded[0], CommandQuery)
	}
	if decoded[1] != "/repo" {
		t.Errorf("root: got %v, want %q", decoded[1], "/repo")
	}
	params, ok := decoded[2].(map[string]any)
	if !ok {
		t.Fatalf("params type: got %T, want map", decoded[2])
	}
	if _, present := params["since"]; present {
		t.Errorf("unset optional field was encoded: %v", params)
	}
}

func TestQueryResultRoundTrip(t *testing.T) {
	t.Parallel()
	// A server echo of the structures we send must decode back to the
	// same values for every schema-defined field.
	original := QueryResult[NameOnly]{
		Version:         "1.0",
		Clock:           NamedClock("c:1:2:3"),
		IsFreshInstance: true,
		Files:           []NameOnly{{Name: "a.txt"}, {Name: "sub/b.txt"}},
		Root:            "/repo",
	}
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded QueryResult[NameOnly]
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Version != original.Version ||
		decoded.Clock != original.Clock ||
		decoded.IsFreshInstance != original.IsFreshInstance ||
		decoded.Root != original.Root {
		t.Errorf("scalar fields: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Files) != 2 || decoded.Files[0].Name != "a.txt" || decoded.Files[1].Name != "sub/b.txt" {
		t.Errorf("files: got %+v", decoded.Files)
	}
}

func TestFieldListSelections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		selector FieldList
		want     []string
	}{
		{name: "NameOnly", selector: NameOnly{}, want: []string{"name"}},
		{name: "NameAndMTime", selector: NameAndMTime{}, want: []string{"name", "mtime"}},
		{name: "FileStatus", selector: FileStatus{}, want: []string{"name", "exists", "new", "size", "mtime", "type"}},
	}
	for _, test := range tests {
		got := test.selector.FieldList()
		if len(got) != len(test.want) {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("%s[%d]: got %q, want %q", test.name, i, got[i], test.want[i])
			}
		}
	}
}
