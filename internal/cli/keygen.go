package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/identity"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a Nostr identity and store it under --state-dir",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := statePaths(cmd)
		if err := paths.EnsureDir(); err != nil {
			return err
		}
		id, err := identity.Generate()
		if err != nil {
			return err
		}
		if err := saveIdentity(paths, id, passphraseFlag(cmd)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", id.GetPublicKey())
		return nil
	},
}
