package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/solvaholic/rally/internal/normalize"
)

// ActivityFilter narrows ListActivities
type ActivityFilter struct {
	SportType string
	Limit     int
}

func (f ActivityFilter) query() map[string]string {
	q := map[string]string{}
	if f.SportType != "" {
		q["sportType"] = f.SportType
	}
	if f.Limit > 0 {
		q["limit"] = strconv.Itoa(f.Limit)
	}
	return q
}

// ListActivities fetches the activity feed
func (c *Client) ListActivities(ctx context.Context, filter ActivityFilter) (*Response[[]*normalize.Activity], error) {
	return fetch(ctx, c, http.MethodGet, "/activities", nil, filter.query(),
		func(raw []byte) ([]*normalize.Activity, error) {
			return normalize.NormalizeActivities(normalize.Unwrap(raw, "activities"))
		})
}

// GetActivity fetches a single activity
func (c *Client) GetActivity(ctx context.Context, id string) (*Response[*normalize.Activity], error) {
	return fetch(ctx, c, http.MethodGet, "/activities/"+url.PathEscape(id), nil, nil,
		func(raw []byte) (*normalize.Activity, error) {
			return normalize.NormalizeActivity(normalize.Unwrap(raw, "activity"))
		})
}

// SuggestActivities fetches the activities suggested for the current user
func (c *Client) SuggestActivities(ctx context.Context) (*Response[[]*normalize.Activity], error) {
	return fetch(ctx, c, http.MethodGet, "/activities/suggestions", nil, nil,
		func(raw []byte) ([]*normalize.Activity, error) {
			return normalize.NormalizeActivities(normalize.Unwrap(raw, "suggestions", "activities"))
		})
}

// JoinActivity joins an activity. Records holds the updated activity when the
// backend echoes one back, and is nil for a bare acknowledgement.
func (c *Client) JoinActivity(ctx context.Context, id string) (*Response[*normalize.Activity], error) {
	return fetch(ctx, c, http.MethodPost, "/activities/"+url.PathEscape(id)+"/join", nil, nil,
		func(raw []byte) (*normalize.Activity, error) {
			body := normalize.Unwrap(raw, "activity")
			if !hasID(body) {
				return nil, nil
			}
			return normalize.NormalizeActivity(body)
		})
}

// ListChats fetches the chats the current user takes part in
func (c *Client) ListChats(ctx context.Context) (*Response[[]*normalize.ChatThread], error) {
	return fetch(ctx, c, http.MethodGet, "/chats", nil, nil,
		func(raw []byte) ([]*normalize.ChatThread, error) {
			return normalize.NormalizeChatThreads(normalize.Unwrap(raw, "chats"))
		})
}

// GetChat fetches a single chat
func (c *Client) GetChat(ctx context.Context, id string) (*Response[*normalize.ChatThread], error) {
	return fetch(ctx, c, http.MethodGet, "/chats/"+url.PathEscape(id), nil, nil,
		func(raw []byte) (*normalize.ChatThread, error) {
			return normalize.NormalizeChatThread(normalize.Unwrap(raw, "chat"))
		})
}

// ListMessages fetches the messages of a chat
func (c *Client) ListMessages(ctx context.Context, chatID string) (*Response[[]*normalize.ChatMessage], error) {
	return fetch(ctx, c, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil, nil,
		func(raw []byte) ([]*normalize.ChatMessage, error) {
			messages, err := normalize.NormalizeChatMessages(normalize.Unwrap(raw, "messages"))
			if err != nil {
				return nil, err
			}
			fillChatID(messages, chatID)
			return messages, nil
		})
}

// SendMessage posts a message to a chat and returns the stored message
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*Response[*normalize.ChatMessage], error) {
	if content == "" {
		return nil, errors.New("message content is required")
	}
	body := map[string]string{"content": content}
	return fetch(ctx, c, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", body, nil,
		func(raw []byte) (*normalize.ChatMessage, error) {
			msg, err := normalize.NormalizeChatMessage(normalize.Unwrap(raw, "message"))
			if err != nil {
				return nil, err
			}
			fillChatID([]*normalize.ChatMessage{msg}, chatID)
			return msg, nil
		})
}

// ListChatSummaries fetches the precomputed chat overview rows
func (c *Client) ListChatSummaries(ctx context.Context) (*Response[[]*normalize.ChatListItem], error) {
	return fetch(ctx, c, http.MethodGet, "/chats/list", nil, nil,
		func(raw []byte) ([]*normalize.ChatListItem, error) {
			return normalize.NormalizeChatListItems(normalize.Unwrap(raw, "chats"))
		})
}

// Me fetches the authenticated user
func (c *Client) Me(ctx context.Context) (*Response[*normalize.Participant], error) {
	return fetch(ctx, c, http.MethodGet, "/auth/me", nil, nil,
		func(raw []byte) (*normalize.Participant, error) {
			return normalize.NormalizeParticipant(normalize.Unwrap(raw, "user"))
		})
}

// fetch performs a request and decodes a successful body with decode.
func fetch[T any](ctx context.Context, c *Client, method, path string, body any, query map[string]string,
	decode func([]byte) (T, error)) (*Response[T], error) {
	raw, status, err := c.do(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}

	records, err := decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s %s", method, path)
	}

	return &Response[T]{Records: records, Raw: raw, Status: status}, nil
}

// fillChatID links messages that came without a chat reference to the chat
// they were requested from.
func fillChatID(messages []*normalize.ChatMessage, chatID string) {
	for _, m := range messages {
		if m.ChatID == nil {
			id := chatID
			m.ChatID = &id
		}
	}
}

func hasID(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	v := gjson.ParseBytes(body)
	return v.IsObject() && (v.Get("id").Exists() || v.Get("_id").Exists())
}
