package models

import "time"

// LikeStatus tracks the lifecycle of a Like.
type LikeStatus string

// IsValid reports whether s is a known status.
func (s LikeStatus) IsValid() bool {
	switch s {
	case LikeStatusPending, LikeStatusAccepted, LikeStatusRejected:
		return true
	}
	return false
}

// Like is directional interest from one user to another. Storage keeps one
// Like per ordered pair: the most recent one.
type Like struct {
	ID        string     `dynamodbav:"likeId" json:"id"`
	FromUser  string     `dynamodbav:"fromUser" json:"from_user"`
	ToUser    string     `dynamodbav:"toUser" json:"to_user"`
	Status    LikeStatus `dynamodbav:"status" json:"status"`
	CreatedAt time.Time  `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt time.Time  `dynamodbav:"updatedAt" json:"updated_at"`
}

// IsPending reports whether the like is still active.
func (l Like) IsPending() bool {
	return l.Status == LikeStatusPending
}

// LikeWithProfiles is a Like annotated for list views.
type LikeWithProfiles struct {
	Like
	FromUserProfile *ProfileSummary `json:"from_user_profile"`
	ToUserProfile   *ProfileSummary `json:"to_user_profile"`
	IsMutual        bool            `json:"is_mutual"`
}

// LikeResult is returned by sending or accepting a like.
type LikeResult struct {
	Matched bool   `json:"matched"`
	MatchID string `json:"match_id,omitempty"`
	Like    *Like  `json:"like,omitempty"`
}
