package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/credential"
	"github.com/marmot-go/marmotgroup/internal/group"
	"github.com/marmot-go/marmotgroup/internal/mlsstate"
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a group with this identity as sole member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		paths := statePaths(cmd)
		passphrase := passphraseFlag(cmd)

		id, err := loadIdentity(paths, passphrase)
		if err != nil {
			return err
		}
		sigPriv, sigPub, _, initPub, err := loadLeafKey(paths, passphrase)
		if err != nil {
			return err
		}
		cred, err := credential.CreateCredential(id.GetPublicKey())
		if err != nil {
			return err
		}

		groupStore, err := groupStoreFor(paths)
		if err != nil {
			return err
		}
		net := networkFile(cmd)

		_, groupID, err := group.CreateGroup(
			cred.Identity,
			sigPriv,
			sigPub,
			initPub,
			name,
			group.CreateOptions{Relays: relaysFlag(cmd)},
			groupStore,
			net,
			mlsstate.ClientConfig{},
			id.GetPublicKey(),
		)
		if err != nil {
			return err
		}
		if err := writeGroupID(paths, groupID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%x\n", groupID)
		return nil
	},
}
