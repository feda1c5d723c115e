package normalize

import "github.com/tidwall/gjson"

// NormalizeChatListItem converts a raw chat overview row to the canonical
// schema.
func NormalizeChatListItem(raw []byte) (*ChatListItem, error) {
	v, err := parse(raw, "chat list item")
	if err != nil {
		return nil, err
	}
	return ChatListItemFromJSON(v)
}

// ChatListItemFromJSON converts a parsed chat overview object. Every field
// has a default.
func ChatListItemFromJSON(v gjson.Result) (*ChatListItem, error) {
	if !v.IsObject() {
		return nil, structural("chat list item", "expected a JSON object")
	}

	id, _ := resolveID(v, listItemIDKeys...)

	return &ChatListItem{
		ID:                 id,
		ParticipantNames:   stringOr(v, "participantNames", ""),
		ParticipantAvatars: participantAvatars(v),
		LastMessage:        stringOr(v, "lastMessage", ""),
		LastMessageTime:    stringOr(v, "lastMessageTime", ""),
		UnreadCount:        intOr(v, "unreadCount", 0),
		IsGroup:            boolOr(v, "isGroup", false),
	}, nil
}

func (i *ChatListItem) UnmarshalJSON(data []byte) error {
	out, err := NormalizeChatListItem(data)
	if err != nil {
		return err
	}
	*i = *out
	return nil
}

// participantAvatars prefers the embedded chat.participants collection and
// only reads the flat participantAvatars array when that yields nothing.
func participantAvatars(v gjson.Result) []string {
	var avatars []string

	if nested := v.Get("chat.participants"); nested.IsArray() {
		nested.ForEach(func(_, p gjson.Result) bool {
			if !p.IsObject() {
				return true
			}
			if url := firstNonEmpty(p, "profileImageUrl", "avatar"); url != "" {
				avatars = append(avatars, url)
			}
			return true
		})
	}

	if len(avatars) > 0 {
		return avatars
	}
	return stringArray(v, "participantAvatars")
}
