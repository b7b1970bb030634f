package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/parley/pkg/remote"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the remote model endpoint",
	Long:  `Send a single probe message to the configured remote endpoint and report whether it answered.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	client, err := remote.New(rt.cfg.Remote)
	if err != nil {
		return err
	}

	if !remote.TestConnection(cmd.Context(), client) {
		fmt.Printf("Connection: failed (%s, model %s)\n", rt.cfg.Remote.Provider, rt.cfg.Remote.Model)
		return fmt.Errorf("remote endpoint unreachable")
	}

	fmt.Printf("Connection: ok (%s, model %s)\n", rt.cfg.Remote.Provider, rt.cfg.Remote.Model)
	return nil
}
