package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/giftwrap"
)

var inviteCmd = &cobra.Command{
	Use:   "invite [key-package-event.json]",
	Short: "Add the member announced by a key-package event, writing their Welcome to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kpPath := args[0]
		out, _ := cmd.Flags().GetString("welcome-out")
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

		data, err := os.ReadFile(kpPath)
		if err != nil {
			return fmt.Errorf("read key-package event: %w", err)
		}
		var kpEvent nostr.Event
		if err := json.Unmarshal(data, &kpEvent); err != nil {
			return fmt.Errorf("decode key-package event: %w", err)
		}

		wrapper := giftwrap.NewWrapper(id.SecretKeyHex())
		ctx := context.Background()
		if err := engine.AddMember(ctx, wrapper, &kpEvent, inboxRelaysFlag(cmd)); err != nil {
			return err
		}

		giftWrap, ok, err := net.LatestGiftWrapFor(kpEvent.PubKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("commit acknowledged but no Welcome gift wrap found for %s", kpEvent.PubKey)
		}
		welcomeData, err := json.MarshalIndent(giftWrap, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, welcomeData, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	},
}

func init() {
	inviteCmd.Flags().String("welcome-out", "welcome.json", "where to write the gift-wrapped Welcome for out-of-band delivery")
}
