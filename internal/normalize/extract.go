package normalize

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Identifier field priority per entity. The orders differ between entities
// and must stay that way: the backend already relies on which field wins when
// a payload carries both.
var (
	activityIDKeys = []string{"id", "_id"}
	threadIDKeys   = []string{"_id", "id"}
	messageIDKeys  = []string{"id", "_id"}
	listItemIDKeys = []string{"id", "_id"}
	embeddedIDKeys = []string{"_id", "id"}
)

// parse validates raw bytes and returns the document tree. Invalid JSON is a
// structural failure for the entity being decoded.
func parse(raw []byte, entity string) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, structural(entity, "payload is not valid JSON")
	}
	return gjson.ParseBytes(raw), nil
}

// parseFragment parses a nested value where invalid input simply means
// "nothing usable".
func parseFragment(raw []byte) gjson.Result {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

// present reports whether v exists and is not JSON null.
func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

// isScalar reports whether v is a non-null JSON primitive.
func isScalar(v gjson.Result) bool {
	switch v.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return true
	}
	return false
}

// isText reports whether v can stand in for a string field.
func isText(v gjson.Result) bool {
	return v.Type == gjson.String || v.Type == gjson.Number
}

// resolveID returns the first primitive found under keys, in priority order.
func resolveID(obj gjson.Result, keys ...string) (string, bool) {
	for _, key := range keys {
		if v := obj.Get(key); isScalar(v) {
			return v.String(), true
		}
	}
	return "", false
}

// optID is resolveID returning nil when no key matched.
func optID(obj gjson.Result, keys ...string) *string {
	if id, ok := resolveID(obj, keys...); ok {
		return &id
	}
	return nil
}

// firstPresent returns the first of keys that is present and not null.
func firstPresent(obj gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := obj.Get(key); present(v) {
			return v
		}
	}
	return gjson.Result{}
}

// stringOr returns the string value of key, or def when it is missing or not
// a string-like value.
func stringOr(obj gjson.Result, key, def string) string {
	if v := obj.Get(key); isText(v) {
		return v.String()
	}
	return def
}

// firstString returns the first string-like value among keys, or "".
func firstString(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := obj.Get(key); isText(v) {
			return v.String()
		}
	}
	return ""
}

// optString returns the string value of key, or nil.
func optString(obj gjson.Result, key string) *string {
	if v := obj.Get(key); isText(v) {
		s := v.String()
		return &s
	}
	return nil
}

// firstOptString returns the first string-like value among keys, or nil.
func firstOptString(obj gjson.Result, keys ...string) *string {
	for _, key := range keys {
		if s := optString(obj, key); s != nil {
			return s
		}
	}
	return nil
}

// firstNonEmpty returns the first non-empty string among keys, or "".
func firstNonEmpty(obj gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := obj.Get(key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// intOr reads an integer from a number or a numeric string.
func intOr(obj gjson.Result, key string, def int) int {
	v := obj.Get(key)
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(v.Str)); err == nil {
			return n
		}
	}
	return def
}

// optFloat reads a float from a number or a numeric string, or nil.
func optFloat(obj gjson.Result, key string) *float64 {
	v := obj.Get(key)
	switch v.Type {
	case gjson.Number:
		f := v.Num
		return &f
	case gjson.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return &f
		}
	}
	return nil
}

// boolOr reads a boolean from true/false or a boolean-looking string.
func boolOr(obj gjson.Result, key string, def bool) bool {
	v := obj.Get(key)
	switch v.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		if b, err := strconv.ParseBool(strings.TrimSpace(v.Str)); err == nil {
			return b
		}
	}
	return def
}

// stringArray collects the non-empty strings of an array field. Non-string
// elements are skipped.
func stringArray(obj gjson.Result, key string) []string {
	v := obj.Get(key)
	if !v.IsArray() {
		return nil
	}
	var out []string
	v.ForEach(func(_, el gjson.Result) bool {
		if el.Type == gjson.String && el.Str != "" {
			out = append(out, el.Str)
		}
		return true
	})
	return out
}

// linkID resolves a reference to another entity down to its identifier: a
// primitive is used as-is, an object contributes its _id or id.
func linkID(v gjson.Result) *string {
	switch {
	case isScalar(v):
		s := v.String()
		return &s
	case v.IsObject():
		return optID(v, embeddedIDKeys...)
	}
	return nil
}
