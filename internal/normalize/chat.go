package normalize

import "github.com/tidwall/gjson"

// NormalizeChatThread converts a raw chat payload to the canonical schema.
func NormalizeChatThread(raw []byte) (*ChatThread, error) {
	v, err := parse(raw, "chat")
	if err != nil {
		return nil, err
	}
	return ChatThreadFromJSON(v)
}

// ChatThreadFromJSON converts a parsed chat object. Unlike activities, a chat
// without any identifier is rejected.
func ChatThreadFromJSON(v gjson.Result) (*ChatThread, error) {
	if !v.IsObject() {
		return nil, structural("chat", "expected a JSON object")
	}

	id, ok := resolveID(v, threadIDKeys...)
	if !ok {
		return nil, structural("chat", "missing _id and id")
	}

	// Messages are fetched and normalized separately, even when the payload
	// embeds them.
	return &ChatThread{
		ID:           id,
		Participants: participantsFromJSON(v.Get("participants")),
		GroupName:    firstOptString(v, "groupName", "name"),
		GroupAvatar:  optString(v, "groupAvatar"),
		IsGroup:      boolOr(v, "isGroup", false),
		ActivityID:   linkID(firstPresent(v, "activityId", "activity")),
		CreatedAt:    optString(v, "createdAt"),
		UpdatedAt:    optString(v, "updatedAt"),
	}, nil
}

func (c *ChatThread) UnmarshalJSON(data []byte) error {
	out, err := NormalizeChatThread(data)
	if err != nil {
		return err
	}
	*c = *out
	return nil
}
