package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/db"
	"github.com/solvaholic/rally/internal/utils"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Query locally stored records",
	Long: `Select queries the local database for records matching search criteria.

Examples:
  # Upcoming beginner tennis activities
  rally select activities --sport tennis --skill beginner --from 2026-06-01

  # Messages in a chat from the last week
  rally select messages --chat c1 --since 7d

  # Group chats attached to an activity
  rally select chats --groups --activity a1

Output formats:
  - json: Canonical records (default, for tools)
  - jsonl: One record per line (for streaming/piping)
  - table: Human-readable table`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("please specify what to select: activities, messages, chats, or summaries")
	},
}

var selectActivitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Select stored activities",
	Args:  cobra.NoArgs,
	RunE:  runSelectActivities,
}

var selectMessagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Select stored messages, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSelectMessages,
}

var selectChatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Select stored chats",
	Args:  cobra.NoArgs,
	RunE:  runSelectChats,
}

var selectSummariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Select stored chat overview rows",
	Args:  cobra.NoArgs,
	RunE:  runSelectSummaries,
}

var (
	selectSport    string
	selectCreator  string
	selectSkill    string
	selectFrom     string
	selectChat     string
	selectSender   string
	selectUser     string
	selectActivity string
	selectGroups   bool
	selectUnread   bool
	selectSearch   string
	selectSince    string
	selectUntil    string
	selectLimit    int
	selectOffset   int
)

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.AddCommand(selectActivitiesCmd)
	selectCmd.AddCommand(selectMessagesCmd)
	selectCmd.AddCommand(selectChatsCmd)
	selectCmd.AddCommand(selectSummariesCmd)

	for _, c := range []*cobra.Command{selectActivitiesCmd, selectMessagesCmd, selectChatsCmd} {
		c.Flags().IntVar(&selectLimit, "limit", 100, "Maximum number of results")
		c.Flags().IntVar(&selectOffset, "offset", 0, "Offset for pagination")
	}

	selectActivitiesCmd.Flags().StringVar(&selectSport, "sport", "", "Filter by sport type")
	selectActivitiesCmd.Flags().StringVar(&selectCreator, "creator", "", "Filter by creator ID")
	selectActivitiesCmd.Flags().StringVar(&selectSkill, "skill", "", "Filter by skill level")
	selectActivitiesCmd.Flags().StringVar(&selectFrom, "from", "", "Only activities on or after this date (YYYY-MM-DD or relative like 7d)")
	selectActivitiesCmd.Flags().StringVar(&selectSearch, "search", "", "Search title, location and description")

	selectMessagesCmd.Flags().StringVar(&selectChat, "chat", "", "Filter by chat ID")
	selectMessagesCmd.Flags().StringVar(&selectSender, "sender", "", "Filter by sender ID")
	selectMessagesCmd.Flags().StringVar(&selectSince, "since", "", "Start date (YYYY-MM-DD or relative like 7d)")
	selectMessagesCmd.Flags().StringVar(&selectUntil, "until", "", "End date (YYYY-MM-DD)")
	selectMessagesCmd.Flags().StringVar(&selectSearch, "search", "", "Search message content")

	selectChatsCmd.Flags().StringVar(&selectUser, "user", "", "Only chats this user takes part in")
	selectChatsCmd.Flags().StringVar(&selectActivity, "activity", "", "Filter by linked activity ID")
	selectChatsCmd.Flags().BoolVar(&selectGroups, "groups", false, "Only group chats")

	selectSummariesCmd.Flags().BoolVar(&selectUnread, "unread", false, "Only chats with unread messages")
}

func runSelectActivities(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	opts := db.ActivityQuery{
		SportType:  optFlag(selectSport),
		CreatorID:  optFlag(selectCreator),
		SkillLevel: optFlag(selectSkill),
		SearchText: optFlag(selectSearch),
		Limit:      selectLimit,
		Offset:     selectOffset,
	}

	if selectFrom != "" {
		from, err := utils.ParseSinceDate(selectFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		day := from.Format("2006-01-02")
		opts.FromDate = &day
	}

	activities, err := database.SelectActivities(opts)
	if err != nil {
		return fmt.Errorf("failed to select activities: %w", err)
	}

	return outputRecords(activities, activitiesTable)
}

func runSelectMessages(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	opts := db.MessageQuery{
		ChatID:     optFlag(selectChat),
		SenderID:   optFlag(selectSender),
		SearchText: optFlag(selectSearch),
		Limit:      selectLimit,
		Offset:     selectOffset,
	}

	// Parse since/until dates
	if selectSince != "" {
		since, err := utils.ParseSinceDate(selectSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		opts.Since = &since
	}

	if selectUntil != "" {
		until, err := utils.ParseSinceDate(selectUntil)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
		opts.Until = &until
	}

	messages, err := database.SelectMessages(opts)
	if err != nil {
		return fmt.Errorf("failed to select messages: %w", err)
	}

	var selfID string
	if outputFormat == "table" {
		if settings, err := loadSettings(); err == nil {
			selfID = resolveSelfID(settings)
		} else {
			selfID = resolveSelfID(nil)
		}
	}

	return outputRecords(messages, messagesTable(selfID))
}

func runSelectChats(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	chats, err := database.ListChats(db.ChatQuery{
		UserID:     optFlag(selectUser),
		ActivityID: optFlag(selectActivity),
		GroupsOnly: selectGroups,
		Limit:      selectLimit,
		Offset:     selectOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to select chats: %w", err)
	}

	return outputRecords(chats, chatsTable)
}

func runSelectSummaries(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	items, err := database.ListChatListItems(selectUnread)
	if err != nil {
		return fmt.Errorf("failed to select chat summaries: %w", err)
	}

	return outputRecords(items, chatListTable)
}

// optFlag maps an unset string flag to nil
func optFlag(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
