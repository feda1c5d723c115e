package normalize

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Unwrap strips the optional response envelope the backend puts around some
// payloads. It returns the value of "data", or of the first of keys that holds
// an object or array; any other document is returned unchanged.
func Unwrap(raw []byte, keys ...string) []byte {
	v := parseFragment(raw)
	if !v.IsObject() {
		return raw
	}
	for _, key := range append([]string{"data"}, keys...) {
		if inner := v.Get(key); inner.IsObject() || inner.IsArray() {
			return []byte(inner.Raw)
		}
	}
	return raw
}

// NormalizeActivities converts a JSON array of activities.
func NormalizeActivities(raw []byte) ([]*Activity, error) {
	v, err := parse(raw, "activities")
	if err != nil {
		return nil, err
	}
	return decodeList(v, "activities", ActivityFromJSON)
}

// NormalizeChatThreads converts a JSON array of chats.
func NormalizeChatThreads(raw []byte) ([]*ChatThread, error) {
	v, err := parse(raw, "chats")
	if err != nil {
		return nil, err
	}
	return decodeList(v, "chats", ChatThreadFromJSON)
}

// NormalizeChatMessages converts a JSON array of messages.
func NormalizeChatMessages(raw []byte) ([]*ChatMessage, error) {
	v, err := parse(raw, "messages")
	if err != nil {
		return nil, err
	}
	return decodeList(v, "messages", ChatMessageFromJSON)
}

// NormalizeChatListItems converts a JSON array of chat overview rows.
func NormalizeChatListItems(raw []byte) ([]*ChatListItem, error) {
	v, err := parse(raw, "chat list")
	if err != nil {
		return nil, err
	}
	return decodeList(v, "chat list", ChatListItemFromJSON)
}

// decodeList requires an array and stops at the first element that fails,
// reporting its index.
func decodeList[T any](v gjson.Result, entity string, decode func(gjson.Result) (*T, error)) ([]*T, error) {
	if !v.IsArray() {
		return nil, structural(entity, "expected a JSON array")
	}

	out := []*T{}
	var err error
	i := 0
	v.ForEach(func(_, el gjson.Result) bool {
		rec, derr := decode(el)
		if derr != nil {
			err = fmt.Errorf("element %d: %w", i, derr)
			return false
		}
		out = append(out, rec)
		i++
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
