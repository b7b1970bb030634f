package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored conversation transcripts",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.journal == nil {
		fmt.Println("Transcript journal is disabled.")
		return nil
	}

	ids, err := rt.journal.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No transcripts stored.")
		return nil
	}

	for _, id := range ids {
		info, err := rt.journal.Info(id)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%s  %d messages  last active %s\n",
			info.SessionID,
			info.MessageCount,
			info.LastModified.Format("2006-01-02 15:04:05"))
	}

	return nil
}
