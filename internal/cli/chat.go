package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/parley/pkg/approval"
	"github.com/harun/parley/pkg/engine"
	"github.com/harun/parley/pkg/remote"
	"github.com/harun/parley/pkg/session"
)

var (
	chatMaxExchanges    int
	chatTimeoutMinutes  int
	chatRequireApproval bool
	chatContext         string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive collaboration session",
	Long: `Start a bounded collaboration session with the configured remote
model. Each outbound message requires operator approval unless
--require-approval=false. The session ends when the exchange budget or the
wall-clock timeout is reached, or on "exit".`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatMaxExchanges, "max-exchanges", 0, "exchange budget (default from config)")
	chatCmd.Flags().IntVar(&chatTimeoutMinutes, "timeout-minutes", 0, "session timeout in minutes (default from config)")
	chatCmd.Flags().BoolVar(&chatRequireApproval, "require-approval", true, "gate every outbound message behind operator approval")
	chatCmd.Flags().StringVar(&chatContext, "context", "", "context string sent with every message")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	client, err := remote.New(rt.cfg.Remote)
	if err != nil {
		return err
	}

	limits := rt.cfg.Session
	if chatMaxExchanges > 0 {
		limits.MaxExchanges = chatMaxExchanges
	}
	if chatTimeoutMinutes > 0 {
		limits.TimeoutMinutes = chatTimeoutMinutes
	}
	if cmd.Flags().Changed("require-approval") {
		limits.RequireApproval = chatRequireApproval
	}

	reader := bufio.NewReader(os.Stdin)
	gate := approval.NewCLIGate(reader, os.Stdout)
	registry := session.NewRegistry(rt.journal)
	eng := engine.New(registry, gate, client)

	ctx := cmd.Context()
	id, err := eng.CreateSession(ctx, limits)
	if err != nil {
		return err
	}
	defer eng.EndSession(ctx, id)

	fmt.Printf("Session %s started (budget: %d exchanges, timeout: %dm)\n", id, limits.MaxExchanges, limits.TimeoutMinutes)
	fmt.Println(`Type a message and press enter; "exit" ends the session.`)

	for {
		fmt.Print("you> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		content := strings.TrimSpace(line)
		if content == "" {
			continue
		}
		if content == "exit" {
			return nil
		}

		reply, err := eng.Exchange(ctx, id, content, chatContext)
		switch {
		case err == nil:
			fmt.Printf("remote> %s\n", reply)

		case errors.Is(err, engine.ErrApprovalDenied):
			fmt.Println("Message denied; nothing was sent.")

		case errors.Is(err, session.ErrExchangeLimit):
			fmt.Println("Exchange budget exhausted; session ended.")
			return nil

		case errors.Is(err, session.ErrInactive):
			fmt.Println("Session is no longer active.")
			return nil

		default:
			fmt.Printf("Exchange failed: %v\n", err)
		}
	}
}
