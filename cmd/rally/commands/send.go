package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/api"
	"github.com/solvaholic/rally/internal/normalize"
	"github.com/solvaholic/rally/internal/stream"
)

var sendCmd = &cobra.Command{
	Use:   "send TEXT...",
	Short: "Send a chat message",
	Long: `Send posts a message to a chat as the configured user.

By default the message is posted over the REST API and the echoed message is
stored locally. With --stream it is sent over the realtime socket instead.

Examples:
  rally send --chat c1 "See you at 6"
  rally send --chat c1 --stream running late`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendChat   string
	sendStream bool
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendChat, "chat", "", "Chat ID (required)")
	sendCmd.Flags().BoolVar(&sendStream, "stream", false, "Send over the realtime socket")
	sendCmd.MarkFlagRequired("chat")
}

func runSend(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message content is empty")
	}

	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if sendStream {
		conn, err := stream.Dial(b.ctx, b.settings.StreamURL, b.settings.Token, stream.Options{Logger: b.log})
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Join(sendChat); err != nil {
			return err
		}
		if err := conn.Send(sendChat, content); err != nil {
			return err
		}
		return OutputJSON(map[string]interface{}{
			"status":  "sent",
			"chat_id": sendChat,
		})
	}

	var resp *api.Response[*normalize.ChatMessage]
	err = b.guard("POST /chats/:id/messages", func() error {
		resp, err = b.client.SendMessage(b.ctx, sendChat, content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if err := b.database.SaveMessage(resp.Records); err != nil {
		b.log.Warn("failed to store sent message", "id", resp.Records.ID, "err", err)
	}

	return outputRecords([]*normalize.ChatMessage{resp.Records}, messagesTable(b.selfID()))
}
