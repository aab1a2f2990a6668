// Package config provides constants, configuration management, and path
// helpers for marmotgroup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// MarmotGroupDataExtensionType is the MLS extension type under which
	// the Marmot Group Data Extension is carried in the group context.
	MarmotGroupDataExtensionType = 0xF2EE

	// MarmotGroupDataVersion is the current encoded version of the
	// Marmot Group Data Extension.
	MarmotGroupDataVersion = 0x0001

	// MLSCiphersuiteID is MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519.
	MLSCiphersuiteID = 0x0001

	// KindKeyPackage is the transport event kind carrying a published
	// MLS key package (Marmot).
	KindKeyPackage = 443

	// KindWelcome is the transport event kind carrying a gift-wrapped
	// Welcome rumor.
	KindWelcome = 444

	// KindGroupEvent is the transport event kind carrying an MLS
	// proposal, commit, or application message, NIP-44 sealed.
	KindGroupEvent = 445

	// KindKeyPackageRelayList is the transport event kind advertising
	// the relays a user's key packages are published to.
	KindKeyPackageRelayList = 10051

	// KindDeletion is the standard Nostr deletion-request kind, used to
	// retract a spent or rotated key package.
	KindDeletion = 5

	// DefaultKeyPackageLifetimeDays bounds how long a published key
	// package is considered valid for being picked up by an inviter.
	DefaultKeyPackageLifetimeDays = 90

	// DefaultInboxRelayCount is the default for Config.InboxRelayCount.
	// Welcome delivery does not read it: welcome.ResolveInboxRelays applies
	// no cap to the inbox relays it returns.
	DefaultInboxRelayCount = 3

	// Version is the marmotgroup version string.
	Version = "0.1.0"
)

// FindStateDir walks up from start (or cwd) until a .marmot directory is
// found, mirroring the teacher's git-root discovery but for a
// transport-agnostic local state directory instead of a VCS checkout.
func FindStateDir(start string) (string, error) {
	if start == "" {
		var err error
		start, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get working directory: %w", err)
		}
	}
	p, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		info, err := os.Stat(filepath.Join(p, ".marmot"))
		if err == nil && info.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("not inside a marmotgroup state directory")
		}
		p = parent
	}
}

// Config holds runtime configuration from .marmot/config.toml.
type Config struct {
	Version          string   `toml:"version"`
	CipherSuite      int      `toml:"cipher_suite"`
	DefaultRelays    []string `toml:"default_relays"`
	InboxRelayCount  int      `toml:"inbox_relay_count"`
	KeyPackageTTLDay int      `toml:"key_package_ttl_days"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	return Config{
		Version:          Version,
		CipherSuite:      MLSCiphersuiteID,
		DefaultRelays:    nil,
		InboxRelayCount:  DefaultInboxRelayCount,
		KeyPackageTTLDay: DefaultKeyPackageLifetimeDays,
	}
}

// tomlConfig is the TOML wrapper for serialization.
type tomlConfig struct {
	Marmot Config `toml:"marmot"`
}

// ToTOML serializes the config to TOML text.
func (c Config) ToTOML() string {
	wrapper := tomlConfig{Marmot: c}
	var buf strings.Builder
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(wrapper); err != nil {
		// DefaultConfig-derived values always encode; a failure here
		// means a caller hand-built an unencodable Config.
		return fmt.Sprintf("# encode error: %v\n", err)
	}
	return buf.String()
}

// ConfigFromTOML parses a config from TOML text, filling unset fields from
// DefaultConfig.
func ConfigFromTOML(text string) (Config, error) {
	var wrapper tomlConfig
	if _, err := toml.Decode(text, &wrapper); err != nil {
		return Config{}, fmt.Errorf("parsing config TOML: %w", err)
	}
	cfg := DefaultConfig()
	m := wrapper.Marmot
	if m.Version != "" {
		cfg.Version = m.Version
	}
	if m.CipherSuite != 0 {
		cfg.CipherSuite = m.CipherSuite
	}
	if len(m.DefaultRelays) > 0 {
		cfg.DefaultRelays = m.DefaultRelays
	}
	if m.InboxRelayCount != 0 {
		cfg.InboxRelayCount = m.InboxRelayCount
	}
	if m.KeyPackageTTLDay != 0 {
		cfg.KeyPackageTTLDay = m.KeyPackageTTLDay
	}
	return cfg, nil
}
