package models

import (
	"strings"
	"time"
)

// Gender is the optional self-declared gender on a profile.
type Gender string

// IsValid reports whether g is one of the accepted genders (unset included).
func (g Gender) IsValid() bool {
	switch g {
	case GenderUnset, GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Profile is the single profile owned by a user.
type Profile struct {
	UserID      string    `dynamodbav:"userId" json:"user_id"`
	DisplayName string    `dynamodbav:"displayName" json:"display_name"`
	Bio         string    `dynamodbav:"bio,omitempty" json:"bio"`
	Age         *int      `dynamodbav:"age,omitempty" json:"age"`
	Gender      Gender    `dynamodbav:"gender,omitempty" json:"gender"`
	Location    string    `dynamodbav:"location,omitempty" json:"location"`
	Interests   []string  `dynamodbav:"interests,omitempty" json:"interests"`
	Avatar      string    `dynamodbav:"avatar,omitempty" json:"avatar,omitempty"` // storage key, not a URL
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt" json:"updated_at"`
}

// ProfileSummary is the public projection of a profile shown to other users.
type ProfileSummary struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio"`
	Age         *int     `json:"age"`
	Gender      Gender   `json:"gender"`
	Location    string   `json:"location"`
	Interests   []string `json:"interests"`
	AvatarURL   string   `json:"avatar,omitempty"`
}

// Summary projects the profile to its public shape. AvatarURL carries the raw
// avatar reference until a signer resolves it.
func (p Profile) Summary() ProfileSummary {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	return ProfileSummary{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Age:         p.Age,
		Gender:      p.Gender,
		Location:    p.Location,
		Interests:   interests,
		AvatarURL:   p.Avatar,
	}
}

// MatchesSearch reports whether term occurs, case-insensitively, in the display
// name, bio, location or any interest. An empty term matches everything.
func (p Profile) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.DisplayName), term) ||
		strings.Contains(strings.ToLower(p.Bio), term) ||
		strings.Contains(strings.ToLower(p.Location), term) {
		return true
	}
	for _, interest := range p.Interests {
		if strings.Contains(strings.ToLower(interest), term) {
			return true
		}
	}
	return false
}

// SplitInterests turns a comma separated tag list into trimmed, non-empty tags.
func SplitInterests(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
