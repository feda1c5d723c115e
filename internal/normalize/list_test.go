package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		keys  []string
		want  string
	}{
		{"data envelope", `{"success":true,"data":[{"id":"a1"}]}`, nil, `[{"id":"a1"}]`},
		{"named envelope", `{"activities":[]}`, []string{"activities"}, `[]`},
		{"data wins over named", `{"data":{"id":"x"},"chat":{"id":"y"}}`, []string{"chat"}, `{"id":"x"}`},
		{"scalar data ignored", `{"data":"nope","id":"a1"}`, nil, `{"data":"nope","id":"a1"}`},
		{"bare array", `[1,2]`, nil, `[1,2]`},
		{"invalid JSON passes through", `{oops`, nil, `{oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Unwrap([]byte(tt.input), tt.keys...)))
		})
	}
}

func TestNormalizeActivities(t *testing.T) {
	activities, err := NormalizeActivities([]byte(`[{"_id":"a1"},{"id":"a2","creator":"u1"}]`))
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, "a1", activities[0].ID)
	assert.Equal(t, "u1", activities[1].Creator.ID())

	empty, err := NormalizeActivities([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestNormalizeListsRequireArray(t *testing.T) {
	_, err := NormalizeActivities([]byte(`{"_id":"a1"}`))
	assert.True(t, IsStructural(err))

	_, err = NormalizeChatMessages([]byte(`"m1"`))
	assert.True(t, IsStructural(err))

	_, err = NormalizeChatListItems([]byte(`null`))
	assert.True(t, IsStructural(err))
}

func TestNormalizeListReportsElementIndex(t *testing.T) {
	_, err := NormalizeChatThreads([]byte(`[{"_id":"c1"},{"participants":[]}]`))
	require.Error(t, err)
	assert.True(t, IsStructural(err))
	assert.Contains(t, err.Error(), "element 1")
}

func TestNormalizeChatMessagesAndListItems(t *testing.T) {
	messages, err := NormalizeChatMessages([]byte(`[{"id":"m1","sender":"u1"},{"_id":"m2"}]`))
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[1].ID)

	items, err := NormalizeChatListItems([]byte(`[{"id":"c1","unreadCount":2}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].UnreadCount)
}
