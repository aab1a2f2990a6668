package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/marmot-go/marmotgroup/internal/group"
	"github.com/marmot-go/marmotgroup/internal/transport"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [events.json]",
	Short: "Decrypt and apply a batch of group events to the active group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventsPath := args[0]
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

		data, err := os.ReadFile(eventsPath)
		if err != nil {
			return fmt.Errorf("read events file: %w", err)
		}
		var all []*nostr.Event
		if err := json.Unmarshal(data, &all); err != nil {
			return fmt.Errorf("decode events file: %w", err)
		}
		var events []*nostr.Event
		for _, e := range all {
			if e.Kind == transport.KindForGroupEvent() {
				events = append(events, e)
			}
		}

		results, err := engine.Ingest(context.Background(), events)
		if err != nil {
			return err
		}
		for _, r := range results {
			printResult(cmd, r)
		}
		return nil
	},
}

func printResult(cmd *cobra.Command, r group.Result) {
	out := cmd.OutOrStdout()
	switch r.Kind {
	case group.ResultApplication:
		fmt.Fprintf(out, "application %s: %s\n", r.Event.ID, r.Rumor.Content)
	case group.ResultCommit:
		fmt.Fprintf(out, "commit %s applied: epoch -> %d\n", r.Event.ID, r.NewEpoch)
	case group.ResultProposal:
		fmt.Fprintf(out, "proposal %s buffered\n", r.Event.ID)
	case group.ResultUnreadable:
		fmt.Fprintf(out, "unreadable %s: %v\n", r.Event.ID, r.Err)
	case group.ResultError:
		fmt.Fprintf(out, "error on %s: %v\n", r.Event.ID, r.Err)
	}
}
