package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/credential"
	"github.com/marmot-go/marmotgroup/internal/keypackage"
)

var keypackageCmd = &cobra.Command{
	Use:   "keypackage",
	Short: "Generate a key package and output its signed key-package event",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		paths := statePaths(cmd)
		passphrase := passphraseFlag(cmd)

		id, err := loadIdentity(paths, passphrase)
		if err != nil {
			return err
		}
		cred, err := credential.CreateCredential(id.GetPublicKey())
		if err != nil {
			return err
		}
		kp, err := keypackage.GenerateKeyPackage(cred, keypackage.GenerateOptions{})
		if err != nil {
			return err
		}
		if err := saveLeafKey(paths, kp.Private.SigPriv, kp.Private.InitPriv, passphrase); err != nil {
			return err
		}

		draft, err := keypackage.CreateKeyPackageEvent(kp, id.GetPublicKey(), keypackage.EventOptions{
			Relays: relaysFlag(cmd),
		})
		if err != nil {
			return err
		}
		signed, err := id.SignEvent(context.Background(), draft)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(signed, "", "  ")
		if err != nil {
			return err
		}
		if out == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return os.WriteFile(out, data, 0o644)
	},
}

func init() {
	keypackageCmd.Flags().String("out", "", "write the signed key-package event here instead of stdout")
}
