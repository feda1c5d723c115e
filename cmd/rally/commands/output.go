package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/solvaholic/rally/internal/normalize"
)

// outputRecords writes records in the selected --format. table renders one
// tabwriter row per record.
func outputRecords[T any](records []T, table func(w io.Writer, records []T)) error {
	switch outputFormat {
	case "json":
		return OutputJSON(records)
	case "jsonl":
		return outputJSONL(records)
	case "table":
		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		table(w, records)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", outputFormat)
	}
}

func outputJSONL[T any](records []T) error {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		fmt.Fprintln(stdout, string(data))
	}
	return nil
}

func activitiesTable(w io.Writer, activities []*normalize.Activity) {
	fmt.Fprintf(w, "DATE\tTIME\tSPORT\tTITLE\tLOCATION\tPLAYERS\tLEVEL\n")
	fmt.Fprintf(w, "----\t----\t-----\t-----\t--------\t-------\t-----\n")
	for _, a := range activities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			a.Date, a.Time, a.SportType, truncate(a.Title, 40), truncate(a.Location, 30),
			a.CurrentParticipants, a.MaxParticipants, a.SkillLevel,
		)
	}
}

// messagesTable marks messages written by selfID (or by the self sender) with "you"
func messagesTable(selfID string) func(io.Writer, []*normalize.ChatMessage) {
	return func(w io.Writer, messages []*normalize.ChatMessage) {
		fmt.Fprintf(w, "TIMESTAMP\tCHAT\tSENDER\tCONTENT\n")
		fmt.Fprintf(w, "---------\t----\t------\t-------\n")
		for _, m := range messages {
			sender := "-"
			if id := m.SenderID(); id != nil && *id != "" && m.IsFrom(selfID) {
				sender = "you"
			} else if name := m.DisplayName(); name != nil && *name != "" {
				sender = *name
			} else if id := m.SenderID(); id != nil {
				sender = *id
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				deref(m.CreatedAt, "-"), deref(m.ChatID, "-"), sender, truncate(m.Content, 60),
			)
		}
	}
}

func chatsTable(w io.Writer, chats []*normalize.ChatThread) {
	fmt.Fprintf(w, "ID\tNAME\tGROUP\tPARTICIPANTS\tACTIVITY\n")
	fmt.Fprintf(w, "--\t----\t-----\t------------\t--------\n")
	for _, c := range chats {
		names := make([]string, 0, len(c.Participants))
		for _, p := range c.Participants {
			names = append(names, deref(p.Name, p.ID))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.ID, deref(c.GroupName, "-"), strconv.FormatBool(c.IsGroup),
			truncate(strings.Join(names, ", "), 40), deref(c.ActivityID, "-"),
		)
	}
}

func chatListTable(w io.Writer, items []*normalize.ChatListItem) {
	fmt.Fprintf(w, "ID\tPARTICIPANTS\tUNREAD\tLAST MESSAGE\tTIME\n")
	fmt.Fprintf(w, "--\t------------\t------\t------------\t----\n")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			it.ID, truncate(it.ParticipantNames, 30), it.UnreadCount,
			truncate(it.LastMessage, 50), it.LastMessageTime,
		)
	}
}

func participantsTable(w io.Writer, people []*normalize.Participant) {
	fmt.Fprintf(w, "ID\tNAME\tEMAIL\n")
	fmt.Fprintf(w, "--\t----\t-----\n")
	for _, p := range people {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, deref(p.Name, "-"), deref(p.Email, "-"))
	}
}

// truncate flattens newlines and shortens s for table display
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

func deref(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
