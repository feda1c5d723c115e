package normalize

import "encoding/json"

// SelfSender is the sender marker the backend uses for messages written by
// the authenticated user.
const SelfSender = "me"

// RefKind tells which wire shape a reference to another entity arrived in.
type RefKind uint8

const (
	RefNone     RefKind = iota // absent, null, or an unusable shape
	RefID                      // bare identifier string
	RefEmbedded                // embedded object
)

func (k RefKind) String() string {
	switch k {
	case RefID:
		return "id"
	case RefEmbedded:
		return "embedded"
	default:
		return "none"
	}
}

// Activity is the canonical form of a sports activity.
type Activity struct {
	ID                  string        `json:"id"`
	Creator             CreatorRef    `json:"creator"`
	SportType           string        `json:"sportType"`
	Title               string        `json:"title"`
	Description         *string       `json:"description"`
	Location            string        `json:"location"`
	Latitude            *float64      `json:"latitude"`  // independent of Longitude
	Longitude           *float64      `json:"longitude"` // independent of Latitude
	Date                string        `json:"date"`
	Time                string        `json:"time"`
	CurrentParticipants int           `json:"currentParticipants"`
	MaxParticipants     int           `json:"maxParticipants"`
	SkillLevel          string        `json:"skillLevel"`
	Visibility          string        `json:"visibility"`
	Participants        []Participant `json:"participants"`
	CreatedAt           *string       `json:"createdAt"`
	UpdatedAt           *string       `json:"updatedAt"`
}

// Creator is an activity creator embedded inline in the payload.
type Creator struct {
	ID        string  `json:"_id"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"profileImageUrl"`
}

// CreatorRef holds an activity creator in whichever shape the backend sent it.
type CreatorRef struct {
	Kind    RefKind
	Ref     string   // set when Kind == RefID
	Creator *Creator // set when Kind == RefEmbedded
}

// ID returns the creator's identifier, or "" when there is no creator.
func (r CreatorRef) ID() string {
	switch r.Kind {
	case RefID:
		return r.Ref
	case RefEmbedded:
		if r.Creator != nil {
			return r.Creator.ID
		}
	}
	return ""
}

// Profile returns the creator as a displayable record. A bare identifier
// becomes a Creator with that ID and an empty name.
func (r CreatorRef) Profile() *Creator {
	switch r.Kind {
	case RefID:
		return &Creator{ID: r.Ref}
	case RefEmbedded:
		return r.Creator
	}
	return nil
}

// MarshalJSON writes the reference back in the shape it was read from.
func (r CreatorRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefID:
		return json.Marshal(r.Ref)
	case RefEmbedded:
		if r.Creator != nil {
			return json.Marshal(r.Creator)
		}
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a creator as a string, an object, or anything else
// (which yields no creator).
func (r *CreatorRef) UnmarshalJSON(data []byte) error {
	*r = creatorFromJSON(parseFragment(data))
	return nil
}

// Participant is a chat or activity member. Display fields stay nil when the
// backend only sent an identifier.
type Participant struct {
	ID     string  `json:"id"`
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Avatar *string `json:"profileImageUrl"`
}

// ChatThread is the canonical form of a chat conversation.
type ChatThread struct {
	ID           string        `json:"_id"`
	Participants []Participant `json:"participants"` // nil when not provided or empty
	GroupName    *string       `json:"groupName"`
	GroupAvatar  *string       `json:"groupAvatar"`
	IsGroup      bool          `json:"isGroup"`
	ActivityID   *string       `json:"activityId"`
	Messages     []ChatMessage `json:"messages"` // never embedded
	CreatedAt    *string       `json:"createdAt"`
	UpdatedAt    *string       `json:"updatedAt"`
}

// SenderProfile is a message sender embedded inline in the payload.
type SenderProfile struct {
	ID              *string `json:"id"`
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	ProfileImageURL *string `json:"profileImageUrl"`
	Avatar          *string `json:"avatar"`
}

// SenderRef holds a message sender in whichever shape the backend sent it.
type SenderRef struct {
	Kind    RefKind
	Ref     string         // set when Kind == RefID
	Profile *SenderProfile // set when Kind == RefEmbedded
}

// ID returns the flat sender identifier: the bare string, or the embedded
// profile's resolved identifier.
func (r SenderRef) ID() *string {
	switch r.Kind {
	case RefID:
		id := r.Ref
		return &id
	case RefEmbedded:
		if r.Profile != nil {
			return r.Profile.ID
		}
	}
	return nil
}

func (r SenderRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefID:
		return json.Marshal(r.Ref)
	case RefEmbedded:
		if r.Profile != nil {
			return json.Marshal(r.Profile)
		}
	}
	return []byte("null"), nil
}

func (r *SenderRef) UnmarshalJSON(data []byte) error {
	*r = senderFromJSON(parseFragment(data))
	return nil
}

// ChatMessage is the canonical form of a single chat message.
type ChatMessage struct {
	ID         string    `json:"id"`
	ChatID     *string   `json:"chatId"`
	Content    string    `json:"content"`
	Sender     SenderRef `json:"sender"`
	SenderName *string   `json:"senderName"`
	Avatar     *string   `json:"avatar"`
	CreatedAt  *string   `json:"createdAt"`
}

// SenderID returns the flat sender identifier, if any.
func (m *ChatMessage) SenderID() *string {
	return m.Sender.ID()
}

// DisplayName returns the embedded sender's name, falling back to the
// precomputed senderName.
func (m *ChatMessage) DisplayName() *string {
	if m.Sender.Kind == RefEmbedded && m.Sender.Profile != nil && m.Sender.Profile.Name != nil {
		return m.Sender.Profile.Name
	}
	return m.SenderName
}

// AvatarURL returns the embedded sender's avatar, falling back to the
// precomputed avatar.
func (m *ChatMessage) AvatarURL() *string {
	if m.Sender.Kind == RefEmbedded && m.Sender.Profile != nil {
		if m.Sender.Profile.ProfileImageURL != nil {
			return m.Sender.Profile.ProfileImageURL
		}
		if m.Sender.Profile.Avatar != nil {
			return m.Sender.Profile.Avatar
		}
	}
	return m.Avatar
}

// IsFrom reports whether the message was written by userID: the flat sender
// id equals userID, or equals SelfSender. A message with no sender matches
// nothing.
func (m *ChatMessage) IsFrom(userID string) bool {
	id := m.SenderID()
	if id == nil {
		return false
	}
	return *id == SelfSender || *id == userID
}

// ChatListItem is one row of the chat overview screen.
type ChatListItem struct {
	ID                 string   `json:"id"`
	ParticipantNames   string   `json:"participantNames"`
	ParticipantAvatars []string `json:"participantAvatars"`
	LastMessage        string   `json:"lastMessage"`
	LastMessageTime    string   `json:"lastMessageTime"`
	UnreadCount        int      `json:"unreadCount"`
	IsGroup            bool     `json:"isGroup"`
}
