package cli

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Seal and publish a text application message to the active group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := args[0]
		paths := statePaths(cmd)
		passphrase := passphraseFlag(cmd)

		id, err := loadIdentity(paths, passphrase)
		if err != nil {
			return err
		}
		net := networkFile(cmd)
		engine, err := loadEngine(paths, id, net)
		if err != nil {
			return err
		}

		ctx := context.Background()
		// The rumor is the unsigned inner event an application message
		// carries; it is never handed to a Signer. Its authenticity comes
		// from having been produced under the current epoch's key
		// schedule, not from a Nostr signature.
		rumor := &nostr.Event{
			Kind:      1,
			PubKey:    id.GetPublicKey(),
			Content:   text,
			CreatedAt: nostr.Now(),
		}
		if err := engine.SendApplicationRumor(ctx, rumor); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent at epoch %d\n", engine.State().Epoch)
		return nil
	},
}
