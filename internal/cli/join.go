package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/giftwrap"
	"github.com/marmot-go/marmotgroup/internal/mls"
	"github.com/marmot-go/marmotgroup/internal/welcome"
)

var joinCmd = &cobra.Command{
	Use:   "join [welcome.json]",
	Short: "Reconstruct group state from a gift-wrapped Welcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		welcomePath := args[0]
		paths := statePaths(cmd)
		passphrase := passphraseFlag(cmd)

		id, err := loadIdentity(paths, passphrase)
		if err != nil {
			return err
		}
		sigPriv, _, _, _, err := loadLeafKey(paths, passphrase)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(welcomePath)
		if err != nil {
			return fmt.Errorf("read welcome file: %w", err)
		}
		var giftWrap nostr.Event
		if err := json.Unmarshal(data, &giftWrap); err != nil {
			return fmt.Errorf("decode welcome file: %w", err)
		}

		wrapper := giftwrap.NewWrapper(id.SecretKeyHex())
		rumor, err := wrapper.Unwrap(context.Background(), &giftWrap)
		if err != nil {
			return fmt.Errorf("unwrap welcome: %w", err)
		}
		welcomeBytes, err := welcome.GetWelcome(rumor)
		if err != nil {
			return err
		}
		payload, err := mls.DecodeWelcome(welcomeBytes)
		if err != nil {
			return err
		}
		state := mls.NewStateFromWelcome(payload, sigPriv)

		groupStore, err := groupStoreFor(paths)
		if err != nil {
			return err
		}
		if err := groupStore.Add(state); err != nil {
			return err
		}
		if err := writeGroupID(paths, state.PrivateGroupID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "joined group %x at epoch %d\n", state.PrivateGroupID, state.Epoch)
		return nil
	},
}
