// Package cli implements marmotctl, a demo command-line client driving
// one identity through the group lifecycle: keygen, keypackage, create,
// invite, join, send, ingest. It exists to exercise internal/group's
// engine end to end over a transport that doesn't require a live relay;
// production embedders are expected to supply their own transport.Network
// and call straight into internal/group instead.
package cli

import (
	"os"
	"path/filepath"
)

// StatePaths locates one identity's on-disk state: the .marmot directory
// holding its Nostr identity, MLS leaf key, and group store, mirroring
// the teacher's MLSGitPaths layout but rooted at a plain directory
// instead of a git worktree.
type StatePaths struct {
	Root string
}

func (p StatePaths) dir() string { return filepath.Join(p.Root, ".marmot") }

// EnsureDir creates the state directory if absent.
func (p StatePaths) EnsureDir() error {
	return os.MkdirAll(p.dir(), 0o755)
}

// IdentityFile holds the (possibly sealed) Nostr identity record.
func (p StatePaths) IdentityFile() string { return filepath.Join(p.dir(), "identity.json") }

// LeafKeyFile holds the MLS leaf signature key, PEM-encoded (PKCS8),
// optionally passphrase-encrypted.
func (p StatePaths) LeafKeyFile() string { return filepath.Join(p.dir(), "leaf_key.pem") }

// InitPrivFile holds the raw MLS init-key secret; its public half is
// always the SHA-256 of this file's bytes, so nothing else needs storing.
func (p StatePaths) InitPrivFile() string { return filepath.Join(p.dir(), "init_priv.bin") }

// GroupIDFile holds the hex id of the one group this state directory is
// currently a member of. marmotctl drives a single active group at a
// time, same as one git worktree holds one mlsgit group.
func (p StatePaths) GroupIDFile() string { return filepath.Join(p.dir(), "group_id") }

// GroupsDir roots the FileKV backing this identity's GroupStore.
func (p StatePaths) GroupsDir() string { return filepath.Join(p.dir(), "groups") }
