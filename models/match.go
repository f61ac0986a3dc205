package models

import "time"

// Match is the record of a mutual like between two users. UserA always sorts
// before UserB so a pair has exactly one key regardless of like direction.
type Match struct {
	ID        string    `dynamodbav:"matchId" json:"id"`
	UserA     string    `dynamodbav:"userA" json:"user_a"`
	UserB     string    `dynamodbav:"userB" json:"user_b"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created_at"`
}

// HasParticipant reports whether userID is one of the two matched users.
func (m Match) HasParticipant(userID string) bool {
	return userID != "" && (m.UserA == userID || m.UserB == userID)
}

// Counterpart returns the other participant, or "" if userID is not in the match.
func (m Match) Counterpart(userID string) string {
	switch userID {
	case m.UserA:
		return m.UserB
	case m.UserB:
		return m.UserA
	}
	return ""
}

// CanonicalPair orders two user IDs so that the first sorts before the second.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// MatchWithProfiles is a Match annotated with both participants' summaries.
type MatchWithProfiles struct {
	Match
	UserAProfile *ProfileSummary `json:"user_a_profile"`
	UserBProfile *ProfileSummary `json:"user_b_profile"`
}
