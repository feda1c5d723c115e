package db

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/rally/internal/normalize"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "rally.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustActivity(t *testing.T, raw string) *normalize.Activity {
	t.Helper()
	a, err := normalize.NormalizeActivity([]byte(raw))
	require.NoError(t, err)
	return a
}

func mustChat(t *testing.T, raw string) *normalize.ChatThread {
	t.Helper()
	c, err := normalize.NormalizeChatThread([]byte(raw))
	require.NoError(t, err)
	return c
}

func mustMessage(t *testing.T, raw string) *normalize.ChatMessage {
	t.Helper()
	m, err := normalize.NormalizeChatMessage([]byte(raw))
	require.NoError(t, err)
	return m
}

func strPtr(s string) *string { return &s }

func TestOpenReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rally.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveRawResponse("activities", "all", []byte(`[]`)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	body, err := db.GetRawResponse("activities", "all")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(body))
	assert.Equal(t, path, db.Path())
}

func TestActivityRoundTrip(t *testing.T) {
	db := openTestDB(t)

	a := mustActivity(t, `{
		"_id":"a1","sportType":"Tennis","title":"Morning doubles","description":"bring balls",
		"location":"Court 3","latitude":52.1,"date":"2026-04-01","time":"08:00",
		"maxParticipants":4,"creator":{"_id":"u1","name":"Ann","email":"ann@example.com"},
		"participants":["u1",{"_id":"u2","name":"Bo"}]
	}`)
	require.NoError(t, db.SaveActivity(a))

	got, err := db.GetActivity("a1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	creator, err := db.GetUser("u1")
	require.NoError(t, err)
	require.NotNil(t, creator)
	assert.Equal(t, "Ann", *creator.Name)
	assert.Equal(t, "ann@example.com", *creator.Email)

	missing, err := db.GetActivity("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveActivityRequiresID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveActivity(mustActivity(t, `{"title":"no id"}`)))
}

func TestSelectActivities(t *testing.T) {
	db := openTestDB(t)

	for _, raw := range []string{
		`{"id":"a1","sportType":"tennis","title":"Doubles","date":"2026-04-03","creator":"u1"}`,
		`{"id":"a2","sportType":"running","title":"Park run","location":"Riverside","date":"2026-04-01","creator":"u2"}`,
		`{"id":"a3","sportType":"Tennis","title":"Singles","description":"near the river","date":"2026-04-02","creator":"u1"}`,
	} {
		require.NoError(t, db.SaveActivity(mustActivity(t, raw)))
	}

	ids := func(as []*normalize.Activity) []string {
		out := []string{}
		for _, a := range as {
			out = append(out, a.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		query ActivityQuery
		want  []string
	}{
		{"all by date", ActivityQuery{}, []string{"a2", "a3", "a1"}},
		{"sport ignores case", ActivityQuery{SportType: strPtr("TENNIS")}, []string{"a3", "a1"}},
		{"creator", ActivityQuery{CreatorID: strPtr("u2")}, []string{"a2"}},
		{"from date", ActivityQuery{FromDate: strPtr("2026-04-02")}, []string{"a3", "a1"}},
		{"search location and description", ActivityQuery{SearchText: strPtr("river")}, []string{"a2", "a3"}},
		{"limit", ActivityQuery{Limit: 1}, []string{"a2"}},
		{"offset without limit", ActivityQuery{Offset: 2}, []string{"a1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SelectActivities(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSaveChatReplacesParticipants(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveChat(mustChat(t, `{"_id":"c1","isGroup":true,"groupName":"Tuesday tennis",
		"participants":[{"_id":"u1","name":"Ann"},"u2","u1"],"activityId":"a1"}`)))

	users, err := db.GetChatUsers("c1")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)

	require.NoError(t, db.SaveChat(mustChat(t, `{"_id":"c1","participants":["u3"]}`)))
	users, err = db.GetChatUsers("c1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u3", users[0].ID)

	// The profile learned earlier survives
	ann, err := db.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", *ann.Name)

	chat, err := db.GetChat("c1")
	require.NoError(t, err)
	assert.Nil(t, chat.GroupName)
	assert.Nil(t, chat.Messages)
}

func TestListChats(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveChat(mustChat(t, `{"_id":"c1","participants":["u1","u2"],"activityId":"a1"}`)))
	require.NoError(t, db.SaveChat(mustChat(t, `{"_id":"c2","participants":["u2","u3"],"isGroup":true}`)))

	all, err := db.ListChats(ChatQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := db.ListChats(ChatQuery{UserID: strPtr("u1")})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].ID)

	groups, err := db.ListChats(ChatQuery{GroupsOnly: true})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "c2", groups[0].ID)

	byActivity, err := db.ListChats(ChatQuery{ActivityID: strPtr("a1")})
	require.NoError(t, err)
	require.Len(t, byActivity, 1)

	ids, err := db.ChatIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)
}

func TestUserMergeKeepsKnownFields(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveUser(&User{ID: "u1", Name: strPtr("Ann"), Email: strPtr("ann@example.com")}))
	require.NoError(t, db.SaveUser(&User{ID: "u1", AvatarURL: strPtr("a.png")}))

	u, err := db.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", *u.Name)
	assert.Equal(t, "ann@example.com", *u.Email)
	assert.Equal(t, "a.png", *u.AvatarURL)

	assert.Error(t, db.SaveUser(&User{}))

	none, err := db.GetUser("ghost")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMessages(t *testing.T) {
	db := openTestDB(t)

	saved, err := db.SaveMessages([]*normalize.ChatMessage{
		mustMessage(t, `{"id":"m1","chatId":"c1","content":"hello all","sender":{"_id":"u1","name":"Ann"},"createdAt":"2026-03-01T10:00:00Z"}`),
		mustMessage(t, `{"id":"m2","chatId":"c1","content":"on my way","sender":"me","createdAt":"2026-03-01T11:00:00Z"}`),
		mustMessage(t, `{"id":"m3","chatId":"c2","content":"Hello?","sender":"u2","createdAt":"not a time"}`),
		mustMessage(t, `{"content":"no id"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	all, err := db.SelectMessages(MessageQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m2", all[0].ID)
	assert.Equal(t, "m1", all[1].ID)
	assert.Equal(t, "m3", all[2].ID, "unparseable timestamps sort last")

	inChat, err := db.SelectMessages(MessageQuery{ChatID: strPtr("c1")})
	require.NoError(t, err)
	assert.Len(t, inChat, 2)

	since := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	recent, err := db.SelectMessages(MessageQuery{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "m2", recent[0].ID)

	search, err := db.SelectMessages(MessageQuery{SearchText: strPtr("hello")})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	bySender, err := db.SelectMessages(MessageQuery{SenderID: strPtr("u1")})
	require.NoError(t, err)
	require.Len(t, bySender, 1)
	assert.Equal(t, "Ann", *bySender[0].DisplayName())

	// The self token is not a user
	me, err := db.GetUser(normalize.SelfSender)
	require.NoError(t, err)
	assert.Nil(t, me)

	ann, err := db.GetUser("u1")
	require.NoError(t, err)
	require.NotNil(t, ann)
	assert.Equal(t, "Ann", *ann.Name)
}

func TestChatListItems(t *testing.T) {
	db := openTestDB(t)

	for _, raw := range []string{
		`{"id":"c1","lastMessageTime":"2026-03-01T10:00:00Z","unreadCount":0}`,
		`{"id":"c2","lastMessageTime":"2026-03-02T10:00:00Z","unreadCount":3,"participantAvatars":["x"]}`,
	} {
		item, err := normalize.NormalizeChatListItem([]byte(raw))
		require.NoError(t, err)
		require.NoError(t, db.SaveChatListItem(item))
	}

	all, err := db.ListChatListItems(false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ID)
	assert.Equal(t, []string{"x"}, all[0].ParticipantAvatars)

	unread, err := db.ListChatListItems(true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, 3, unread[0].UnreadCount)

	assert.Error(t, db.SaveChatListItem(&normalize.ChatListItem{}))
}

func TestRawResponsesUpsert(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveRawResponse("messages", "c1", []byte(`[1]`)))
	require.NoError(t, db.SaveRawResponse("messages", "c1", []byte(`[1,2]`)))

	body, err := db.GetRawResponse("messages", "c1")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(body))

	none, err := db.GetRawResponse("messages", "c9")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRateLimit(t *testing.T) {
	db := openTestDB(t)
	const host, endpoint = "api.example.com", "/chats"

	status, err := db.GetRateLimitStatus(host, endpoint)
	require.NoError(t, err)
	assert.Nil(t, status)

	allowed, err := db.CheckRateLimit(host, endpoint)
	require.NoError(t, err)
	assert.True(t, allowed)

	status, err = db.GetRateLimitStatus(host, endpoint)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, DefaultRateSafetyLimit, status.SafetyLimit)

	// A tighter limit on another endpoint
	require.NoError(t, db.InitRateLimit(host, "/activities", 3600, 3, 2))
	for i := 0; i < 2; i++ {
		allowed, err := db.CheckRateLimit(host, "/activities")
		require.NoError(t, err)
		require.True(t, allowed)
		require.NoError(t, db.RecordRequest(host, "/activities"))
	}

	allowed, err = db.CheckRateLimit(host, "/activities")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, db.ResetRateLimitWindow(host, "/activities"))
	allowed, err = db.CheckRateLimit(host, "/activities")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Windows are per endpoint
	other, err := db.GetRateLimitStatus(host, endpoint)
	require.NoError(t, err)
	assert.Equal(t, 0, other.RequestsMade)
}

func TestReserveRequest(t *testing.T) {
	db := openTestDB(t)
	const host = "api.example.com"

	// First reservation creates the row with defaults and counts itself
	allowed, err := db.ReserveRequest(host, "/chats")
	require.NoError(t, err)
	assert.True(t, allowed)
	status, err := db.GetRateLimitStatus(host, "/chats")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 1, status.RequestsMade)
	assert.Equal(t, DefaultRateSafetyLimit, status.SafetyLimit)

	// Concurrent callers never get more slots than the safety limit
	const endpoint = "/chats/:id/messages"
	require.NoError(t, db.InitRateLimit(host, endpoint, 3600, 5, 3))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.ReserveRequest(host, endpoint)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	status, err = db.GetRateLimitStatus(host, endpoint)
	require.NoError(t, err)
	assert.Equal(t, 3, status.RequestsMade)

	// An expired window starts over
	_, err = db.Exec(`UPDATE rate_limits SET window_start = ? WHERE endpoint = ?`,
		time.Now().UTC().Add(-2*time.Hour), endpoint)
	require.NoError(t, err)
	allowed, err = db.ReserveRequest(host, endpoint)
	require.NoError(t, err)
	assert.True(t, allowed)
	status, err = db.GetRateLimitStatus(host, endpoint)
	require.NoError(t, err)
	assert.Equal(t, 1, status.RequestsMade)
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveActivity(mustActivity(t, `{"id":"a1","creator":"u1"}`)))
	require.NoError(t, db.SaveChat(mustChat(t, `{"_id":"c1","participants":["u1","u2"]}`)))
	require.NoError(t, db.SaveMessage(mustMessage(t, `{"id":"m1","chatId":"c1","sender":"u2","createdAt":"2026-03-01T10:00:00Z"}`)))
	require.NoError(t, db.SaveMessage(mustMessage(t, `{"id":"m2","chatId":"c1","sender":"u1","createdAt":"2026-03-02T10:00:00Z"}`)))
	require.NoError(t, db.SaveRawResponse("chats", "all", []byte(`[]`)))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActivityCount)
	assert.Equal(t, int64(1), stats.ChatCount)
	assert.Equal(t, int64(2), stats.MessageCount)
	assert.Equal(t, int64(2), stats.UserCount)
	assert.Equal(t, int64(1), stats.RawResponseCount)
	require.NotNil(t, stats.EarliestMessage)
	assert.True(t, stats.EarliestMessage.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, stats.LatestMessage.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	assert.Greater(t, stats.DatabaseSize, int64(0))
}
