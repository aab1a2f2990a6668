package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marmotctl",
	Short: "Drive one identity through an MLS group over an offline demo transport",
}

func init() {
	rootCmd.PersistentFlags().String("state-dir", ".", "directory holding this identity's .marmot state")
	rootCmd.PersistentFlags().String("network-file", "marmot-network.json", "flat-file standing in for a shared relay")
	rootCmd.PersistentFlags().String("passphrase", "", "passphrase protecting the identity and leaf key at rest (falls back to MARMOTGROUP_PASSPHRASE)")
	rootCmd.PersistentFlags().StringSlice("relays", nil, "group relay URLs")
	rootCmd.PersistentFlags().StringSlice("inbox-relays", nil, "recipient inbox relay URLs for Welcome delivery")

	rootCmd.AddCommand(keygenCmd, keypackageCmd, createCmd, inviteCmd, joinCmd, sendCmd, ingestCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func statePaths(cmd *cobra.Command) StatePaths {
	root, _ := cmd.Flags().GetString("state-dir")
	return StatePaths{Root: root}
}

func networkFile(cmd *cobra.Command) *FileNetwork {
	path, _ := cmd.Flags().GetString("network-file")
	return NewFileNetwork(path)
}

func passphraseFlag(cmd *cobra.Command) []byte {
	v, _ := cmd.Flags().GetString("passphrase")
	if v == "" {
		return nil
	}
	return []byte(v)
}

func relaysFlag(cmd *cobra.Command) []string {
	v, _ := cmd.Flags().GetStringSlice("relays")
	return v
}

func inboxRelaysFlag(cmd *cobra.Command) []string {
	v, _ := cmd.Flags().GetStringSlice("inbox-relays")
	return v
}
