package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/normalize"
	"github.com/solvaholic/rally/internal/stream"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream incoming chat messages",
	Long: `Listen connects to the realtime socket, joins the given chats (or every
chat in the local database) and prints each incoming message as one JSON line.
Messages are stored as they arrive. Press Ctrl-C to stop.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

var listenChats []string

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringSliceVar(&listenChats, "chat", nil, "Chat ID to join (can be repeated)")
}

func runListen(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	chatIDs := listenChats
	if len(chatIDs) == 0 {
		if chatIDs, err = b.database.ChatIDs(); err != nil {
			return err
		}
	}

	conn, err := stream.Dial(b.ctx, b.settings.StreamURL, b.settings.Token, stream.Options{Logger: b.log})
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, id := range chatIDs {
		if err := conn.Join(id); err != nil {
			return fmt.Errorf("failed to join chat %s: %w", id, err)
		}
	}
	b.log.Info("listening", "url", b.settings.StreamURL, "chats", len(chatIDs))

	received := 0
	err = conn.Run(b.ctx, func(msg *normalize.ChatMessage) error {
		received++
		if msg.ID != "" {
			if err := b.database.SaveMessage(msg); err != nil {
				b.log.Warn("failed to store message", "id", msg.ID, "err", err)
			}
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	})

	b.log.Info("stopped listening", "received", received)
	return err
}
