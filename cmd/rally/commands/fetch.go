package commands

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solvaholic/rally/internal/api"
	"github.com/solvaholic/rally/internal/cache"
	"github.com/solvaholic/rally/internal/db"
	"github.com/solvaholic/rally/internal/normalize"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve records from the backend",
	Long: `Fetch retrieves activities, chats and messages from the backend and stores
them locally.

Every response is kept exactly as received under ~/.rally/raw and in the
database, then normalized and stored as canonical records. Requests are
self-limited per endpoint.

Examples:
  # Fetch the activity feed for one sport
  rally fetch activities --sport tennis

  # Fetch messages for every known chat
  rally fetch chats && rally fetch messages

  # Remember who the token belongs to
  rally fetch me`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("please specify what to fetch: activities, activity, suggestions, chats, chat, messages, summaries, or me")
	},
}

var fetchActivitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Fetch the activity feed",
	Args:  cobra.NoArgs,
	RunE:  runFetchActivities,
}

var fetchActivityCmd = &cobra.Command{
	Use:   "activity ID",
	Short: "Fetch a single activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetchActivity,
}

var fetchSuggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Fetch suggested activities",
	Args:  cobra.NoArgs,
	RunE:  runFetchSuggestions,
}

var fetchChatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Fetch chat threads",
	Args:  cobra.NoArgs,
	RunE:  runFetchChats,
}

var fetchChatCmd = &cobra.Command{
	Use:   "chat ID",
	Short: "Fetch a single chat thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetchChat,
}

var fetchMessagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Fetch chat messages",
	Long: `Fetch messages for the chats named with --chat, or for every chat in the
local database when none are named. Chats are fetched concurrently.`,
	Args: cobra.NoArgs,
	RunE: runFetchMessages,
}

var fetchSummariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Fetch the chat overview list",
	Args:  cobra.NoArgs,
	RunE:  runFetchSummaries,
}

var fetchMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Fetch and cache the authenticated user",
	Args:  cobra.NoArgs,
	RunE:  runFetchMe,
}

var (
	fetchSport       string
	fetchLimit       int
	fetchChats       []string
	fetchConcurrency int
)

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchActivitiesCmd)
	fetchCmd.AddCommand(fetchActivityCmd)
	fetchCmd.AddCommand(fetchSuggestionsCmd)
	fetchCmd.AddCommand(fetchChatsCmd)
	fetchCmd.AddCommand(fetchChatCmd)
	fetchCmd.AddCommand(fetchMessagesCmd)
	fetchCmd.AddCommand(fetchSummariesCmd)
	fetchCmd.AddCommand(fetchMeCmd)

	fetchActivitiesCmd.Flags().StringVar(&fetchSport, "sport", "", "Filter by sport type")
	fetchActivitiesCmd.Flags().IntVar(&fetchLimit, "limit", 0, "Maximum number of activities to fetch")

	fetchMessagesCmd.Flags().StringSliceVar(&fetchChats, "chat", nil, "Chat ID (can be repeated)")
	fetchMessagesCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 4, "Chats fetched in parallel")
}

func runFetchActivities(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[[]*normalize.Activity]
	err = b.guard("/activities", func() error {
		resp, err = b.client.ListActivities(b.ctx, api.ActivityFilter{SportType: fetchSport, Limit: fetchLimit})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch activities: %w", err)
	}

	key := "all"
	if fetchSport != "" {
		key = fetchSport
	}
	b.saveRaw("activities", key, resp.Raw)

	stored := storeActivities(b, resp.Records)
	b.log.Info("fetched activities", "count", len(resp.Records), "stored", stored)

	return outputRecords(resp.Records, activitiesTable)
}

func runFetchActivity(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[*normalize.Activity]
	err = b.guard("/activities/:id", func() error {
		resp, err = b.client.GetActivity(b.ctx, args[0])
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch activity %s: %w", args[0], err)
	}

	b.saveRaw("activity", args[0], resp.Raw)
	storeActivities(b, []*normalize.Activity{resp.Records})

	return outputRecords([]*normalize.Activity{resp.Records}, activitiesTable)
}

func runFetchSuggestions(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[[]*normalize.Activity]
	err = b.guard("/activities/suggestions", func() error {
		resp, err = b.client.SuggestActivities(b.ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch suggestions: %w", err)
	}

	b.saveRaw("suggestions", "all", resp.Raw)

	stored := storeActivities(b, resp.Records)
	b.log.Info("fetched suggestions", "count", len(resp.Records), "stored", stored)

	return outputRecords(resp.Records, activitiesTable)
}

func storeActivities(b *backend, activities []*normalize.Activity) int {
	stored := 0
	for _, a := range activities {
		if err := b.database.SaveActivity(a); err != nil {
			b.log.Warn("failed to store activity", "id", a.ID, "err", err)
			continue
		}
		stored++
	}
	return stored
}

func runFetchChats(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[[]*normalize.ChatThread]
	err = b.guard("/chats", func() error {
		resp, err = b.client.ListChats(b.ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch chats: %w", err)
	}

	b.saveRaw("chats", "all", resp.Raw)

	stored := storeChats(b, resp.Records)
	b.log.Info("fetched chats", "count", len(resp.Records), "stored", stored)

	return outputRecords(resp.Records, chatsTable)
}

func runFetchChat(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[*normalize.ChatThread]
	err = b.guard("/chats/:id", func() error {
		resp, err = b.client.GetChat(b.ctx, args[0])
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch chat %s: %w", args[0], err)
	}

	b.saveRaw("chat", args[0], resp.Raw)
	storeChats(b, []*normalize.ChatThread{resp.Records})

	return outputRecords([]*normalize.ChatThread{resp.Records}, chatsTable)
}

func storeChats(b *backend, chats []*normalize.ChatThread) int {
	stored := 0
	for _, c := range chats {
		if err := b.database.SaveChat(c); err != nil {
			b.log.Warn("failed to store chat", "id", c.ID, "err", err)
			continue
		}
		stored++
	}
	return stored
}

func runFetchMessages(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	chatIDs := fetchChats
	if len(chatIDs) == 0 {
		chatIDs, err = b.database.ChatIDs()
		if err != nil {
			return err
		}
		if len(chatIDs) == 0 {
			return fmt.Errorf("no chats in the local database, run 'rally fetch chats' first or pass --chat")
		}
	}

	// One slot per chat keeps output in the order chats were given
	results := make([][]*normalize.ChatMessage, len(chatIDs))
	var stored atomic.Int64

	g, ctx := errgroup.WithContext(b.ctx)
	if fetchConcurrency > 0 {
		g.SetLimit(fetchConcurrency)
	}

	for i, chatID := range chatIDs {
		i, chatID := i, chatID
		g.Go(func() error {
			var resp *api.Response[[]*normalize.ChatMessage]
			err := b.guard("/chats/:id/messages", func() error {
				var err error
				resp, err = b.client.ListMessages(ctx, chatID)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to fetch messages for chat %s: %w", chatID, err)
			}

			b.saveRaw("messages", chatID, resp.Raw)

			n, err := b.database.SaveMessages(resp.Records)
			if err != nil {
				b.log.Warn("failed to store messages", "chat", chatID, "err", err)
			}
			stored.Add(int64(n))

			b.log.Debug("fetched messages", "chat", chatID, "count", len(resp.Records))
			results[i] = resp.Records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	all := []*normalize.ChatMessage{}
	for _, msgs := range results {
		all = append(all, msgs...)
	}
	b.log.Info("fetched messages", "chats", len(chatIDs), "count", len(all), "stored", stored.Load())

	return outputRecords(all, messagesTable(b.selfID()))
}

func runFetchSummaries(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[[]*normalize.ChatListItem]
	err = b.guard("/chats/list", func() error {
		resp, err = b.client.ListChatSummaries(b.ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch chat summaries: %w", err)
	}

	b.saveRaw("summaries", "all", resp.Raw)

	stored := 0
	for _, item := range resp.Records {
		if err := b.database.SaveChatListItem(item); err != nil {
			b.log.Warn("failed to store chat summary", "id", item.ID, "err", err)
			continue
		}
		stored++
	}
	b.log.Info("fetched chat summaries", "count", len(resp.Records), "stored", stored)

	return outputRecords(resp.Records, chatListTable)
}

func runFetchMe(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	var resp *api.Response[*normalize.Participant]
	err = b.guard("/auth/me", func() error {
		resp, err = b.client.Me(b.ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch current user: %w", err)
	}

	b.saveRaw("me", "session", resp.Raw)

	if err := cache.SaveSession(b.settings.BaseURL, resp.Records); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	if err := b.database.SaveUser(db.UserFromParticipant(*resp.Records)); err != nil {
		b.log.Warn("failed to store user", "id", resp.Records.ID, "err", err)
	}

	b.log.Info("authenticated", "user", resp.Records.ID)
	return outputRecords([]*normalize.Participant{resp.Records}, participantsTable)
}
