package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [FILE]",
	Short: "Normalize a raw backend response",
	Long: `Normalize reads a raw backend response from FILE (or stdin) and prints
the canonical record(s).

Response envelopes such as {"data": ...} or {"activities": [...]} are removed
first. A payload that cannot be normalized is reported as an error.

Examples:
  # Normalize a saved activity list
  rally normalize --kind activity --list activities.json

  # Normalize a single message from stdin
  echo '{"_id":"m1","text":"hi","sender":"me"}' | rally normalize --kind message`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNormalize,
}

var (
	normalizeKind string
	normalizeList bool
)

func init() {
	rootCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().StringVarP(&normalizeKind, "kind", "k", "", "Record kind: activity, chat, message, chat-list, user (required)")
	normalizeCmd.Flags().BoolVar(&normalizeList, "list", false, "Input is an array of records")
	normalizeCmd.MarkFlagRequired("kind")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	switch normalizeKind {
	case "activity":
		if normalizeList {
			return normalizeMany(normalize.Unwrap(raw, "activities"), normalize.NormalizeActivities, activitiesTable)
		}
		return normalizeOne(normalize.Unwrap(raw, "activity"), normalize.NormalizeActivity, activitiesTable)
	case "chat":
		if normalizeList {
			return normalizeMany(normalize.Unwrap(raw, "chats"), normalize.NormalizeChatThreads, chatsTable)
		}
		return normalizeOne(normalize.Unwrap(raw, "chat"), normalize.NormalizeChatThread, chatsTable)
	case "message":
		table := messagesTable("")
		if normalizeList {
			return normalizeMany(normalize.Unwrap(raw, "messages"), normalize.NormalizeChatMessages, table)
		}
		return normalizeOne(normalize.Unwrap(raw, "message"), normalize.NormalizeChatMessage, table)
	case "chat-list":
		if normalizeList {
			return normalizeMany(normalize.Unwrap(raw, "chats"), normalize.NormalizeChatListItems, chatListTable)
		}
		return normalizeOne(normalize.Unwrap(raw, "chat"), normalize.NormalizeChatListItem, chatListTable)
	case "user":
		if normalizeList {
			return fmt.Errorf("--list is not supported for kind user")
		}
		return normalizeOne(normalize.Unwrap(raw, "user"), normalize.NormalizeParticipant, participantsTable)
	default:
		return fmt.Errorf("unknown kind: %s (use activity, chat, message, chat-list, user)", normalizeKind)
	}
}

func normalizeOne[T any](raw []byte, decode func([]byte) (*T, error), table func(io.Writer, []*T)) error {
	rec, err := decode(raw)
	if err != nil {
		return err
	}
	if outputFormat == "table" {
		return outputRecords([]*T{rec}, table)
	}
	// A single record prints as an object rather than a one-element array
	return OutputJSON(rec)
}

func normalizeMany[T any](raw []byte, decode func([]byte) ([]*T, error), table func(io.Writer, []*T)) error {
	recs, err := decode(raw)
	if err != nil {
		return err
	}
	return outputRecords(recs, table)
}
