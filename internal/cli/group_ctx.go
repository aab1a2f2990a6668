package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/marmot-go/marmotgroup/internal/group"
	"github.com/marmot-go/marmotgroup/internal/identity"
	"github.com/marmot-go/marmotgroup/internal/mlsstate"
	"github.com/marmot-go/marmotgroup/internal/store"
)

func groupStoreFor(paths StatePaths) (*store.GroupStore, error) {
	kv, err := store.NewFileKV(paths.GroupsDir())
	if err != nil {
		return nil, fmt.Errorf("open group store: %w", err)
	}
	return store.NewGroupStore(kv, "", nil), nil
}

func readGroupID(paths StatePaths) ([32]byte, error) {
	var id [32]byte
	data, err := os.ReadFile(paths.GroupIDFile())
	if err != nil {
		return id, fmt.Errorf("read active group (run create or join first): %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(raw) != 32 {
		return id, fmt.Errorf("corrupt group id file %s", paths.GroupIDFile())
	}
	copy(id[:], raw)
	return id, nil
}

func writeGroupID(paths StatePaths, groupID [32]byte) error {
	return os.WriteFile(paths.GroupIDFile(), []byte(hex.EncodeToString(groupID[:])), 0o644)
}

// loadEngine reconstructs the Engine driving this state directory's active
// group, wired to the shared FileNetwork the caller resolved from flags.
func loadEngine(paths StatePaths, id *identity.Identity, net *FileNetwork) (*group.Engine, error) {
	groupID, err := readGroupID(paths)
	if err != nil {
		return nil, err
	}
	groupStore, err := groupStoreFor(paths)
	if err != nil {
		return nil, err
	}
	state, err := groupStore.Get(groupID, mlsstate.ClientConfig{})
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("no stored state for group %x", groupID)
	}
	return group.NewEngine(state, groupStore, net, mlsstate.ClientConfig{}, id.GetPublicKey()), nil
}
