// Package keypackage implements the Marmot key-package builder: MLS key
// packages carrying the capabilities and extensions Marmot groups require,
// their binary wire form, and a content-addressed KeyPackageStore.
//
// This is a self-contained implementation providing MLS-key-package-like
// semantics (init key, leaf signature key, capability/extension lists)
// using Ed25519 + a flat cryptobyte encoding, mirroring the simplifications
// internal/mls makes for the group state itself.
package keypackage

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/cryptobyte"

	"github.com/marmot-go/marmotgroup/internal/config"
	"github.com/marmot-go/marmotgroup/internal/credential"
	"github.com/marmot-go/marmotgroup/internal/crypto"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// Extension types relevant to Marmot key packages.
const (
	ExtMarmotGroupData = uint16(config.MarmotGroupDataExtensionType)
	ExtLastResort       = uint16(0x000A)
)

// greaseValues are GREASE extension/capability ids: reserved placeholders a
// producer may advertise to force readers to tolerate unknown values. They
// must never be echoed back out when building the union of advertised
// extension types.
var greaseValues = map[uint16]bool{
	0x0A0A: true, 0x1A1A: true, 0x2A2A: true, 0x3A3A: true,
	0x4A4A: true, 0x5A5A: true, 0x6A6A: true, 0x7A7A: true,
	0x8A8A: true, 0x9A9A: true, 0xAAAA: true, 0xBABA: true,
	0xCACA: true, 0xDADA: true, 0xEAEA: true, 0xFAFA: true,
}

// PublicPackage is the half of a key package published on the wire.
type PublicPackage struct {
	Ciphersuite  uint16
	Credential   credential.Credential
	SigPub       ed25519.PublicKey
	InitPub      []byte
	Capabilities []uint16
	Extensions   []uint16
	NotBefore    int64
	NotAfter     int64
}

// PrivatePackage is the half kept local to the member, never published.
type PrivatePackage struct {
	SigPriv  ed25519.PrivateKey
	InitPriv []byte
}

// KeyPackage bundles both halves, as returned by GenerateKeyPackage.
type KeyPackage struct {
	Public  PublicPackage
	Private PrivatePackage
}

// GenerateOptions parameterizes GenerateKeyPackage; zero values take the
// documented defaults.
type GenerateOptions struct {
	Capabilities []uint16
	Lifetime     time.Duration
	Extensions   []uint16
	Ciphersuite  uint16
	Now          time.Time
}

const defaultLifetime = time.Duration(config.DefaultKeyPackageLifetimeDays) * 24 * time.Hour

// GenerateKeyPackage builds a fresh MLS key package for cred. It rejects
// any credential type other than basic. Regardless of what the caller
// supplied, the capability list always gains the Marmot Group Data and
// Last Resort extension types, and the extension list always gains the
// Last Resort extension type.
func GenerateKeyPackage(cred credential.Credential, opts GenerateOptions) (KeyPackage, error) {
	if cred.Type != credential.TypeBasic {
		return KeyPackage{}, marmoterr.UnsupportedCredential(fmt.Sprintf("%d", cred.Type))
	}

	sigPriv, sigPub, err := crypto.GenerateKeypair()
	if err != nil {
		return KeyPackage{}, fmt.Errorf("generate leaf signature key: %w", err)
	}
	initPriv := make([]byte, 32)
	if _, err := rand.Read(initPriv); err != nil {
		return KeyPackage{}, fmt.Errorf("generate init key: %w", err)
	}
	initPubHash := sha256.Sum256(initPriv)

	lifetime := opts.Lifetime
	if lifetime == 0 {
		lifetime = defaultLifetime
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	ciphersuite := opts.Ciphersuite
	if ciphersuite == 0 {
		ciphersuite = config.MLSCiphersuiteID
	}

	capabilities := withExtensionType(withExtensionType(opts.Capabilities, ExtMarmotGroupData), ExtLastResort)
	extensions := withExtensionType(opts.Extensions, ExtLastResort)

	pub := PublicPackage{
		Ciphersuite:  ciphersuite,
		Credential:   cred,
		SigPub:       sigPub,
		InitPub:      initPubHash[:],
		Capabilities: capabilities,
		Extensions:   extensions,
		NotBefore:    now.Unix(),
		NotAfter:     now.Add(lifetime).Unix(),
	}
	priv := PrivatePackage{SigPriv: sigPriv, InitPriv: initPriv}
	return KeyPackage{Public: pub, Private: priv}, nil
}

// withExtensionType returns list with want appended if not already present.
func withExtensionType(list []uint16, want uint16) []uint16 {
	for _, v := range list {
		if v == want {
			return list
		}
	}
	return append(append([]uint16{}, list...), want)
}

// EncodePublic renders the wire form of a public package: a flat,
// length-prefixed binary layout in the style of the Marmot Group Data
// Extension codec.
func EncodePublic(pub PublicPackage) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(pub.Ciphersuite)
	b.AddUint16(uint16(pub.Credential.Type))
	b.AddBytes(pub.Credential.Identity[:])
	addLenPrefixed(&b, pub.SigPub)
	addLenPrefixed(&b, pub.InitPub)
	b.AddUint16(uint16(len(pub.Capabilities)))
	for _, c := range pub.Capabilities {
		b.AddUint16(c)
	}
	b.AddUint16(uint16(len(pub.Extensions)))
	for _, e := range pub.Extensions {
		b.AddUint16(e)
	}
	b.AddUint64(uint64(pub.NotBefore))
	b.AddUint64(uint64(pub.NotAfter))
	return b.Bytes()
}

// DecodePublic reverses EncodePublic.
func DecodePublic(raw []byte) (PublicPackage, error) {
	s := cryptobyte.String(raw)
	var pub PublicPackage
	var credType uint16
	var identity []byte
	if !s.ReadUint16(&pub.Ciphersuite) || !s.ReadUint16(&credType) {
		return PublicPackage{}, marmoterr.Truncated(0)
	}
	identity = make([]byte, 32)
	if !s.ReadBytes(&identity, 32) {
		return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
	}
	var id [32]byte
	copy(id[:], identity)
	pub.Credential = credential.Credential{Type: credential.Type(credType), Identity: id}

	sigPub, err := readLenPrefixed(&s)
	if err != nil {
		return PublicPackage{}, err
	}
	pub.SigPub = ed25519.PublicKey(sigPub)

	initPub, err := readLenPrefixed(&s)
	if err != nil {
		return PublicPackage{}, err
	}
	pub.InitPub = initPub

	var capCount uint16
	if !s.ReadUint16(&capCount) {
		return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
	}
	for i := 0; i < int(capCount); i++ {
		var v uint16
		if !s.ReadUint16(&v) {
			return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
		}
		pub.Capabilities = append(pub.Capabilities, v)
	}

	var extCount uint16
	if !s.ReadUint16(&extCount) {
		return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
	}
	for i := 0; i < int(extCount); i++ {
		var v uint16
		if !s.ReadUint16(&v) {
			return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
		}
		pub.Extensions = append(pub.Extensions, v)
	}

	var notBefore, notAfter uint64
	if !s.ReadUint64(&notBefore) || !s.ReadUint64(&notAfter) {
		return PublicPackage{}, marmoterr.Truncated(len(raw) - len(s))
	}
	pub.NotBefore = int64(notBefore)
	pub.NotAfter = int64(notAfter)
	return pub, nil
}

func addLenPrefixed(b *cryptobyte.Builder, data []byte) {
	b.AddUint16(uint16(len(data)))
	b.AddBytes(data)
}

func readLenPrefixed(s *cryptobyte.String) ([]byte, error) {
	var n uint16
	if !s.ReadUint16(&n) {
		return nil, marmoterr.Truncated(0)
	}
	out := make([]byte, n)
	if !s.ReadBytes(&out, int(n)) {
		return nil, marmoterr.Truncated(0)
	}
	return out, nil
}

// Reference is the content-addressed hash key under which a KeyPackage is
// stored: sha256 of the public package's wire encoding.
func Reference(pub PublicPackage) ([32]byte, error) {
	encoded, err := EncodePublic(pub)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(encoded), nil
}

// AdvertisedExtensionTypes computes the union tag set createKeyPackageEvent
// advertises: extensions actually present in the package, union'd with
// capability-declared extension support, minus GREASE placeholders. The
// result is sorted for a stable tag order.
func AdvertisedExtensionTypes(pub PublicPackage) []uint16 {
	seen := map[uint16]bool{}
	for _, e := range pub.Extensions {
		if !greaseValues[e] {
			seen[e] = true
		}
	}
	for _, c := range pub.Capabilities {
		if !greaseValues[c] {
			seen[c] = true
		}
	}
	out := make([]uint16, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
