package normalize

import "github.com/tidwall/gjson"

// NormalizeActivity converts a raw activity payload to the canonical schema.
func NormalizeActivity(raw []byte) (*Activity, error) {
	v, err := parse(raw, "activity")
	if err != nil {
		return nil, err
	}
	return ActivityFromJSON(v)
}

// ActivityFromJSON converts a parsed activity object. Only a non-object input
// fails; missing fields take their defaults and the ID may come back empty.
func ActivityFromJSON(v gjson.Result) (*Activity, error) {
	if !v.IsObject() {
		return nil, structural("activity", "expected a JSON object")
	}

	id, _ := resolveID(v, activityIDKeys...)
	participants := participantsFromJSON(v.Get("participants"))

	return &Activity{
		ID:                  id,
		Creator:             creatorFromJSON(v.Get("creator")),
		SportType:           stringOr(v, "sportType", ""),
		Title:               stringOr(v, "title", ""),
		Description:         optString(v, "description"),
		Location:            stringOr(v, "location", ""),
		Latitude:            optFloat(v, "latitude"),
		Longitude:           optFloat(v, "longitude"),
		Date:                stringOr(v, "date", ""),
		Time:                stringOr(v, "time", ""),
		CurrentParticipants: intOr(v, "currentParticipants", len(participants)),
		MaxParticipants:     intOr(v, "maxParticipants", 0),
		SkillLevel:          stringOr(v, "skillLevel", ""),
		Visibility:          stringOr(v, "visibility", ""),
		Participants:        participants,
		CreatedAt:           optString(v, "createdAt"),
		UpdatedAt:           optString(v, "updatedAt"),
	}, nil
}

// UnmarshalJSON routes encoding/json through the tolerant normalizer.
func (a *Activity) UnmarshalJSON(data []byte) error {
	out, err := NormalizeActivity(data)
	if err != nil {
		return err
	}
	*a = *out
	return nil
}

// creatorFromJSON resolves the creator field: an object is embedded, a string
// is a bare reference, anything else means no creator.
func creatorFromJSON(v gjson.Result) CreatorRef {
	switch {
	case v.IsObject():
		id, _ := resolveID(v, embeddedIDKeys...)
		return CreatorRef{
			Kind: RefEmbedded,
			Creator: &Creator{
				ID:        id,
				Name:      stringOr(v, "name", ""),
				Email:     optString(v, "email"),
				AvatarURL: firstOptString(v, "profileImageUrl", "avatar"),
			},
		}
	case v.Type == gjson.String:
		return CreatorRef{Kind: RefID, Ref: v.Str}
	}
	return CreatorRef{}
}

// participantsFromJSON converts a participants array whose elements are bare
// ids or embedded objects. Unusable elements are skipped, and the result is
// nil when nothing usable remains.
func participantsFromJSON(v gjson.Result) []Participant {
	if !v.IsArray() {
		return nil
	}
	var out []Participant
	v.ForEach(func(_, el gjson.Result) bool {
		if p, ok := participantFromJSON(el); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

func participantFromJSON(v gjson.Result) (Participant, bool) {
	switch {
	case v.Type == gjson.String:
		return Participant{ID: v.Str}, true
	case v.IsObject():
		id, ok := resolveID(v, embeddedIDKeys...)
		if !ok {
			return Participant{}, false
		}
		return Participant{
			ID:     id,
			Name:   optString(v, "name"),
			Email:  optString(v, "email"),
			Avatar: firstOptString(v, "profileImageUrl", "avatar"),
		}, true
	}
	return Participant{}, false
}

// NormalizeParticipant converts a user payload such as the /auth/me response.
// It fails when the payload is not an object carrying an id.
func NormalizeParticipant(raw []byte) (*Participant, error) {
	v, err := parse(raw, "user")
	if err != nil {
		return nil, err
	}
	if !v.IsObject() {
		return nil, structural("user", "expected a JSON object")
	}
	p, ok := participantFromJSON(v)
	if !ok {
		return nil, structural("user", "missing _id and id")
	}
	return &p, nil
}
