// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"strings"
	"testing"

	"github.com/meridian-quant/meridian/lib/schema"
)

func TestHashBytesDeterministic(t *testing.T) {
	data := []byte("the same bytes every time")
	first := HashBytes(data)
	for range 10 {
		if HashBytes(data) != first {
			t.Fatal("HashBytes is not deterministic")
		}
	}
}

func TestHashBytesDistinguishesInputs(t *testing.T) {
	a := HashBytes([]byte("input a"))
	b := HashBytes([]byte("input b"))
	if a == b {
		t.Fatal("different inputs produced the same hash")
	}
}

func TestHashArtifactStableAcrossFieldAssemblyOrder(t *testing.T) {
	spec := schema.StrategySpec{
		Name:         "pairs-spx",
		StrategyType: "stat_arb",
		Parameters:   map[string]any{"z_entry": 2.0, "z_exit": 0.5, "lookback": int64(60)},
	}

	a := schema.NewStrategySpec(spec)
	hashA, rawA, err := HashArtifact(&a)
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}

	// Same logical content built with the map populated in a
	// different order must produce identical bytes.
	spec2 := schema.StrategySpec{
		Name:         "pairs-spx",
		StrategyType: "stat_arb",
		Parameters:   map[string]any{},
	}
	spec2.Parameters["lookback"] = int64(60)
	spec2.Parameters["z_exit"] = 0.5
	spec2.Parameters["z_entry"] = 2.0

	b := schema.NewStrategySpec(spec2)
	hashB, rawB, err := HashArtifact(&b)
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}

	if hashA != hashB {
		t.Errorf("equal artifacts hashed differently: %s vs %s", hashA, hashB)
	}
	if string(rawA) != string(rawB) {
		t.Error("equal artifacts produced different canonical bytes")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	hash := HashBytes([]byte("round trip"))
	formatted := FormatHash(hash)
	if len(formatted) != 64 {
		t.Fatalf("FormatHash length = %d, want 64", len(formatted))
	}

	parsed, err := ParseHash(formatted)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != hash {
		t.Error("ParseHash(FormatHash(h)) != h")
	}
}

func TestParseHashRejectsBadInput(t *testing.T) {
	if _, err := ParseHash("not hex"); err == nil {
		t.Error("ParseHash accepted non-hex input")
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Error("ParseHash accepted short input")
	}
	if _, err := ParseHash(strings.Repeat("ab", 33)); err == nil {
		t.Error("ParseHash accepted long input")
	}
}

func TestFormatRef(t *testing.T) {
	hash := HashBytes([]byte("ref"))
	ref := FormatRef(hash)
	if !strings.HasPrefix(ref, "obj-") {
		t.Errorf("FormatRef = %q, want obj- prefix", ref)
	}
	if len(ref) != len("obj-")+12 {
		t.Errorf("FormatRef length = %d, want %d", len(ref), len("obj-")+12)
	}
	if !strings.HasPrefix(FormatHash(hash), ref[len("obj-"):]) {
		t.Error("ref suffix is not a prefix of the full hex hash")
	}
}

func TestHashTextMarshaling(t *testing.T) {
	hash := HashBytes([]byte("text"))
	text, err := hash.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var decoded Hash
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != hash {
		t.Error("text round trip changed the hash")
	}
}

func TestIsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero hash reported non-zero")
	}
	if HashBytes([]byte("x")).IsZero() {
		t.Error("real hash reported zero")
	}
}
