package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageSenderShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     RefKind
		senderID *string
	}{
		{"absent", `{"id":"m1"}`, RefNone, nil},
		{"null", `{"id":"m1","sender":null}`, RefNone, nil},
		{"bare id", `{"id":"m1","sender":"u1"}`, RefID, ptr("u1")},
		{"numeric id", `{"id":"m1","sender":17}`, RefID, ptr("17")},
		{"embedded id", `{"id":"m1","sender":{"id":"u1","name":"Ann"}}`, RefEmbedded, ptr("u1")},
		{"embedded _id", `{"id":"m1","sender":{"_id":"u2"}}`, RefEmbedded, ptr("u2")},
		{"embedded without id", `{"id":"m1","sender":{"name":"Ghost"}}`, RefEmbedded, nil},
		{"array", `{"id":"m1","sender":["u1"]}`, RefNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeChatMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Sender.Kind)
			assert.Equal(t, tt.senderID, m.SenderID())
		})
	}
}

func TestChatMessageDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"embedded name wins", `{"sender":{"id":"u1","name":"Ann"},"senderName":"Annie"}`, ptr("Ann")},
		{"embedded without name falls back", `{"sender":{"id":"u1"},"senderName":"Annie"}`, ptr("Annie")},
		{"bare sender uses senderName", `{"sender":"u1","senderName":"Annie"}`, ptr("Annie")},
		{"nothing", `{"sender":"u1"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeChatMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.DisplayName())
		})
	}
}

func TestChatMessageAvatarURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"embedded profile image", `{"sender":{"profileImageUrl":"p","avatar":"a"},"avatar":"m"}`, ptr("p")},
		{"embedded avatar", `{"sender":{"avatar":"a"},"avatar":"m"}`, ptr("a")},
		{"embedded empty falls back", `{"sender":{"id":"u1"},"avatar":"m"}`, ptr("m")},
		{"bare sender", `{"sender":"u1","avatar":"m"}`, ptr("m")},
		{"nothing", `{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeChatMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.AvatarURL())
		})
	}
}

func TestChatMessageKeepsPrecomputedFields(t *testing.T) {
	m, err := NormalizeChatMessage([]byte(`{"id":"m1","sender":{"id":"u1","name":"Ann","avatar":"a"},"senderName":"Annie","avatar":"m"}`))
	require.NoError(t, err)

	require.NotNil(t, m.SenderName)
	assert.Equal(t, "Annie", *m.SenderName)
	require.NotNil(t, m.Avatar)
	assert.Equal(t, "m", *m.Avatar)
}

func TestChatMessageIsFrom(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		userID string
		want   bool
	}{
		{"self marker", `{"sender":"me"}`, "u1", true},
		{"self marker with empty user", `{"sender":"me"}`, "", true},
		{"bare id match", `{"sender":"u1"}`, "u1", true},
		{"bare id mismatch", `{"sender":"u2"}`, "u1", false},
		{"embedded match", `{"sender":{"_id":"u1"}}`, "u1", true},
		{"embedded mismatch", `{"sender":{"id":"u2"}}`, "u1", false},
		{"empty sender matches empty user", `{"sender":""}`, "", true},
		{"empty sender mismatch", `{"sender":""}`, "u1", false},
		{"empty user mismatch", `{"sender":"u1"}`, "", false},
		{"no sender", `{}`, "u1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeChatMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.IsFrom(tt.userID))
		})
	}
}

func TestChatMessageBodyAndChatLink(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		content string
		chatID  *string
	}{
		{"content", `{"content":"hi","chatId":"c1"}`, "hi", ptr("c1")},
		{"text fallback", `{"text":"hey","chat":{"_id":"c2"}}`, "hey", ptr("c2")},
		{"content wins over text", `{"content":"","text":"hey"}`, "", nil},
		{"chat link null", `{"chatId":null,"chat":"c3"}`, "", ptr("c3")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NormalizeChatMessage([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.content, m.Content)
			assert.Equal(t, tt.chatID, m.ChatID)
		})
	}
}

func TestChatMessageRoundTrip(t *testing.T) {
	for _, payload := range []string{
		`{"id":"m1","sender":{"_id":"u1","name":"Ann","profileImageUrl":"p"},"senderName":"Annie","content":"yo","createdAt":"2026-01-01T00:00:00Z"}`,
		`{"_id":"m2","sender":"me","text":"omw","chatId":"c1"}`,
		`{"id":"m3"}`,
	} {
		first, err := NormalizeChatMessage([]byte(payload))
		require.NoError(t, err)

		encoded, err := json.Marshal(first)
		require.NoError(t, err)

		second, err := NormalizeChatMessage(encoded)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}
