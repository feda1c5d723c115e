package normalize

import "github.com/tidwall/gjson"

// NormalizeChatMessage converts a raw chat message payload to the canonical
// schema.
func NormalizeChatMessage(raw []byte) (*ChatMessage, error) {
	v, err := parse(raw, "message")
	if err != nil {
		return nil, err
	}
	return ChatMessageFromJSON(v)
}

// ChatMessageFromJSON converts a parsed message object.
//
// Messages resolve their identifier as id then _id, the reverse of chat
// threads. senderName and avatar are kept even when an embedded sender also
// carries them; the accessors on ChatMessage decide which one wins.
func ChatMessageFromJSON(v gjson.Result) (*ChatMessage, error) {
	if !v.IsObject() {
		return nil, structural("message", "expected a JSON object")
	}

	id, _ := resolveID(v, messageIDKeys...)

	return &ChatMessage{
		ID:         id,
		ChatID:     linkID(firstPresent(v, "chatId", "chat")),
		Content:    firstString(v, "content", "text"),
		Sender:     senderFromJSON(v.Get("sender")),
		SenderName: optString(v, "senderName"),
		Avatar:     optString(v, "avatar"),
		CreatedAt:  optString(v, "createdAt"),
	}, nil
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	out, err := NormalizeChatMessage(data)
	if err != nil {
		return err
	}
	*m = *out
	return nil
}

// senderFromJSON resolves the sender field: any primitive is a bare id, an
// object is an embedded profile with every field optional.
func senderFromJSON(v gjson.Result) SenderRef {
	switch {
	case isScalar(v):
		return SenderRef{Kind: RefID, Ref: v.String()}
	case v.IsObject():
		return SenderRef{
			Kind: RefEmbedded,
			Profile: &SenderProfile{
				ID:              optID(v, messageIDKeys...),
				Name:            optString(v, "name"),
				Email:           optString(v, "email"),
				ProfileImageURL: optString(v, "profileImageUrl"),
				Avatar:          optString(v, "avatar"),
			},
		}
	}
	return SenderRef{}
}
