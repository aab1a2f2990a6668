// Package groupdata implements the Marmot Group Data Extension: the
// length-prefixed binary structure embedded in the MLS group context
// under extension type config.MarmotGroupDataExtensionType.
package groupdata

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/cryptobyte"

	"github.com/marmot-go/marmotgroup/internal/config"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

var adminKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// GroupData is the decoded form of the extension.
type GroupData struct {
	Version      uint16
	NostrGroupID [32]byte
	Name         string
	Description  string
	AdminPubkeys []string
	Relays       []string
	ImageHash    []byte // 0 or 32 bytes
	ImageKey     []byte // 0 or 32 bytes
	ImageNonce   []byte // 0 or 12 bytes

	// TrailingBytes counts bytes left over after the last declared field,
	// populated by Decode and ignored by Encode. A nonzero value warns a
	// caller that it decoded a payload written by a newer, extended
	// version of this extension rather than one perfectly matching this
	// layout.
	TrailingBytes int
}

// Encode validates data against the invariants of the extension and emits
// its big-endian, length-prefixed wire form. Relay URLs are normalized
// (trailing slash stripped) before being joined and written.
func Encode(data GroupData) ([]byte, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	normalizedRelays := make([]string, len(data.Relays))
	for i, r := range data.Relays {
		normalizedRelays[i] = normalizeRelay(r)
	}

	var b cryptobyte.Builder
	b.AddUint16(data.Version)
	b.AddBytes(data.NostrGroupID[:])
	addLenPrefixedString(&b, data.Name)
	addLenPrefixedString(&b, data.Description)
	addLenPrefixedString(&b, strings.Join(data.AdminPubkeys, ","))
	addLenPrefixedString(&b, strings.Join(normalizedRelays, ","))
	addLenPrefixedBytes(&b, data.ImageHash)
	addLenPrefixedBytes(&b, data.ImageKey)
	addLenPrefixedBytes(&b, data.ImageNonce)

	return b.Bytes()
}

// Decode reverses Encode. Extra trailing bytes beyond the last declared
// field are tolerated as future-version padding.
func Decode(raw []byte) (GroupData, error) {
	s := cryptobyte.String(raw)
	var data GroupData

	if !s.ReadUint16(&data.Version) {
		return GroupData{}, marmoterr.Truncated(0)
	}
	if data.Version == 0 {
		return GroupData{}, marmoterr.UnsupportedVersion(0)
	}

	var groupID []byte
	if !s.ReadBytes(&groupID, 32) {
		return GroupData{}, marmoterr.Truncated(2)
	}
	copy(data.NostrGroupID[:], groupID)

	offset := 34

	name, n, err := readLenPrefixedString(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	data.Name = name
	offset += n

	desc, n, err := readLenPrefixedString(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	data.Description = desc
	offset += n

	admins, n, err := readLenPrefixedString(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	if admins != "" {
		data.AdminPubkeys = strings.Split(admins, ",")
	}
	offset += n

	relays, n, err := readLenPrefixedString(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	if relays != "" {
		data.Relays = strings.Split(relays, ",")
	}
	offset += n

	imgHash, n, err := readLenPrefixedBytes(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	data.ImageHash = imgHash
	offset += n

	imgKey, n, err := readLenPrefixedBytes(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	data.ImageKey = imgKey
	offset += n

	imgNonce, _, err := readLenPrefixedBytes(&s, offset)
	if err != nil {
		return GroupData{}, err
	}
	data.ImageNonce = imgNonce
	data.TrailingBytes = len(s)

	if err := validate(data); err != nil {
		return GroupData{}, err
	}
	return data, nil
}

func validate(data GroupData) error {
	if len(data.AdminPubkeys) > 0 {
		seen := make(map[string]bool, len(data.AdminPubkeys))
		for _, k := range data.AdminPubkeys {
			if !adminKeyPattern.MatchString(k) {
				return marmoterr.InvalidField("admin_pubkeys", "key must match ^[0-9a-fA-F]{64}$: "+k)
			}
			lower := strings.ToLower(k)
			if seen[lower] {
				return marmoterr.InvalidField("admin_pubkeys", "duplicate admin key (case-insensitive): "+k)
			}
			seen[lower] = true
		}
	}
	for _, r := range data.Relays {
		if err := validateRelay(r); err != nil {
			return err
		}
	}
	if err := validateImageField("image_hash", data.ImageHash, 32); err != nil {
		return err
	}
	if err := validateImageField("image_key", data.ImageKey, 32); err != nil {
		return err
	}
	if err := validateImageField("image_nonce", data.ImageNonce, 12); err != nil {
		return err
	}
	return nil
}

func validateRelay(raw string) error {
	if !strings.HasPrefix(raw, "ws://") && !strings.HasPrefix(raw, "wss://") {
		return marmoterr.InvalidField("relays", "must begin with ws:// or wss://: "+raw)
	}
	if _, err := url.Parse(raw); err != nil {
		return marmoterr.InvalidField("relays", "does not parse as a URL: "+raw)
	}
	return nil
}

func validateImageField(name string, data []byte, wantLen int) error {
	if len(data) != 0 && len(data) != wantLen {
		return marmoterr.InvalidField(name, "must be empty or exactly the fixed length")
	}
	return nil
}

func normalizeRelay(raw string) string {
	return strings.TrimSuffix(raw, "/")
}

func addLenPrefixedString(b *cryptobyte.Builder, s string) {
	addLenPrefixedBytes(b, []byte(s))
}

func addLenPrefixedBytes(b *cryptobyte.Builder, data []byte) {
	b.AddUint16(uint16(len(data)))
	b.AddBytes(data)
}

func readLenPrefixedString(s *cryptobyte.String, offset int) (string, int, error) {
	data, n, err := readLenPrefixedBytes(s, offset)
	return string(data), n, err
}

func readLenPrefixedBytes(s *cryptobyte.String, offset int) ([]byte, int, error) {
	var length uint16
	if !s.ReadUint16(&length) {
		return nil, 0, marmoterr.Truncated(offset)
	}
	var data []byte
	if !s.ReadBytes(&data, int(length)) {
		return nil, 0, marmoterr.Truncated(offset + 2)
	}
	return data, 2 + int(length), nil
}

// SortedAdmins returns a copy of pubkeys sorted for deterministic display,
// used by callers rendering group data (e.g. the CLI) without depending on
// encode order.
func SortedAdmins(pubkeys []string) []string {
	out := append([]string(nil), pubkeys...)
	sort.Strings(out)
	return out
}

// DefaultVersion is the version new GroupData values should be built with.
const DefaultVersion = uint16(config.MarmotGroupDataVersion)
