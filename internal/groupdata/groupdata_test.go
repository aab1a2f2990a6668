package groupdata

import (
	"bytes"
	"testing"
)

func sampleGroupData() GroupData {
	var gid [32]byte
	for i := range gid {
		gid[i] = byte(i)
	}
	return GroupData{
		Version:      1,
		NostrGroupID: gid,
		Name:         "Marmot Fans",
		Description:  "A group about marmots",
		AdminPubkeys: []string{
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		},
		Relays:     []string{"wss://relay.one/", "wss://relay.two"},
		ImageHash:  bytes.Repeat([]byte{0xAB}, 32),
		ImageKey:   bytes.Repeat([]byte{0xCD}, 32),
		ImageNonce: bytes.Repeat([]byte{0xEF}, 12),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := sampleGroupData()
	encoded, err := Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) < 48 {
		t.Fatalf("encoded size = %d, want >= 48", len(encoded))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Name != data.Name || decoded.Description != data.Description {
		t.Errorf("name/description mismatch: %+v", decoded)
	}
	if decoded.NostrGroupID != data.NostrGroupID {
		t.Errorf("NostrGroupID mismatch")
	}
	if len(decoded.Relays) != 2 || decoded.Relays[0] != "wss://relay.one" || decoded.Relays[1] != "wss://relay.two" {
		t.Errorf("relays not normalized: %v", decoded.Relays)
	}
	if !bytes.Equal(decoded.ImageHash, data.ImageHash) {
		t.Errorf("ImageHash mismatch")
	}
	if decoded.TrailingBytes != 0 {
		t.Errorf("TrailingBytes = %d, want 0 for an exact-length payload", decoded.TrailingBytes)
	}
}

func TestEncodeMinimalSize(t *testing.T) {
	var gid [32]byte
	data := GroupData{Version: 1, NostrGroupID: gid}
	encoded, err := Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded) != 48 {
		t.Errorf("minimal encoded size = %d, want 48", len(encoded))
	}
}

func TestEncodeRejectsBadAdminKey(t *testing.T) {
	data := sampleGroupData()
	data.AdminPubkeys = []string{"not-hex"}
	if _, err := Encode(data); err == nil {
		t.Fatal("expected InvalidField error for malformed admin key")
	}
}

func TestEncodeRejectsDuplicateAdminCaseInsensitive(t *testing.T) {
	data := sampleGroupData()
	data.AdminPubkeys = []string{
		"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	if _, err := Encode(data); err == nil {
		t.Fatal("expected InvalidField error for case-insensitive duplicate admin key")
	}
}

func TestEncodeRejectsBadRelayScheme(t *testing.T) {
	data := sampleGroupData()
	data.Relays = []string{"https://relay.example"}
	if _, err := Encode(data); err == nil {
		t.Fatal("expected InvalidField error for non-ws(s) relay")
	}
}

func TestEncodeRejectsWrongImageLength(t *testing.T) {
	data := sampleGroupData()
	data.ImageHash = []byte{1, 2, 3}
	if _, err := Encode(data); err == nil {
		t.Fatal("expected InvalidField error for wrong image_hash length")
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := sampleGroupData()
	encoded, err := Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(encoded[:10]); err == nil {
		t.Fatal("expected Truncated error")
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	data := sampleGroupData()
	data.Version = 0
	// Build manually since Encode would refuse nothing about version 0,
	// but to exercise Decode's check we craft bytes directly.
	raw := make([]byte, 48)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected UnsupportedVersion error for version 0")
	}
}

func TestDecodeToleratesTrailingBytes(t *testing.T) {
	data := sampleGroupData()
	encoded, err := Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	padded := append(encoded, 0xFF, 0xFF, 0xFF)
	decoded, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode with trailing padding: %v", err)
	}
	if decoded.Name != data.Name {
		t.Errorf("Name = %q after padded decode, want %q", decoded.Name, data.Name)
	}
	if decoded.TrailingBytes != 3 {
		t.Errorf("TrailingBytes = %d, want 3", decoded.TrailingBytes)
	}
}
