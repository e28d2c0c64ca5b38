package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/wayfarer/internal/state"
	"github.com/user/wayfarer/internal/types"
)

var showLimit int

func init() {
	conversationShowCmd.Flags().IntVarP(&showLimit, "limit", "n", 20, "number of most recent messages to show (0 for all)")
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationListCmd, conversationShowCmd)
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect stored conversations",
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		conversations := state.NewConversationStore(cfg.DataDir)
		messages := state.NewMessageStore(cfg.DataDir)

		ctx := context.Background()
		list, err := conversations.List(ctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY\tSTATUS\tMESSAGES\tDESTINATION\tUPDATED\tTITLE")
		for _, c := range list {
			count, err := messages.Count(ctx, c.ID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				c.ID,
				c.Key,
				c.Status,
				count,
				c.Trip.DestinationName(),
				c.UpdatedAt.Format("2006-01-02 15:04:05"),
				c.Title,
			)
		}
		return w.Flush()
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		conversations := state.NewConversationStore(cfg.DataDir)
		messages := state.NewMessageStore(cfg.DataDir)

		ctx := context.Background()
		id := types.ConversationID(args[0])
		if _, err := conversations.Get(ctx, id); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("conversation not found: %s", args[0])
			}
			return err
		}

		msgs, err := messages.Tail(ctx, id, showLimit)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		writeTranscript(cmd.OutOrStdout(), msgs)
		return nil
	},
}

func writeTranscript(w io.Writer, msgs []*types.Message) {
	for _, m := range msgs {
		header := fmt.Sprintf("[%s] %s", m.CreatedAt.Format("2006-01-02 15:04"), m.Role)
		if m.Mode != "" && m.Role == types.RoleAssistant {
			header += " (" + string(m.Mode) + ")"
		}
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, strings.TrimSpace(m.Content))

		var extras []string
		if n := len(m.ToolCalls); n > 0 {
			names := make([]string, 0, n)
			for _, tc := range m.ToolCalls {
				names = append(names, tc.Name)
			}
			extras = append(extras, "tools: "+strings.Join(names, ", "))
		}
		if n := len(m.Cards); n > 0 {
			extras = append(extras, fmt.Sprintf("%d cards", n))
		}
		if n := len(m.Videos); n > 0 {
			extras = append(extras, fmt.Sprintf("%d videos", n))
		}
		if m.Itinerary != nil {
			extras = append(extras, fmt.Sprintf("itinerary: %d days", len(m.Itinerary.Days)))
		}
		if m.Error != "" {
			extras = append(extras, "error: "+m.Error)
		}
		if len(extras) > 0 {
			fmt.Fprintf(w, "  (%s)\n", strings.Join(extras, "; "))
		}
		fmt.Fprintln(w)
	}
}
