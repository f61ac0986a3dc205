package models

// Like statuses
const (
	LikeStatusPending  LikeStatus = "pending"
	LikeStatusAccepted LikeStatus = "accepted"
	LikeStatusRejected LikeStatus = "rejected"
)

// Profile genders
const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Field limits carried over from the profile and block forms.
const (
	MaxDisplayNameLength = 50
	MaxBioLength         = 500
	MaxLocationLength    = 100
	MaxBlockReasonLength = 200
	MaxMessageLength     = 2000
)

// DynamoDB table names (prefixed at runtime with DYNAMO_TABLE_PREFIX)
const (
	ProfilesTable = "Profiles"
	LikesTable    = "Likes"
	MatchesTable  = "Matches"
	BlocksTable   = "Blocks"
	MessagesTable = "Messages"
)

// DynamoDB global secondary indexes
const (
	LikeIDIndex       = "likeId-index"
	ReceiverIndex     = "toUser-index"
	MatchIDIndex      = "matchId-index"
	MatchUserAIndex   = "userA-index"
	MatchUserBIndex   = "userB-index"
	BlockIDIndex      = "blockId-index"
	BlockedUserIndex  = "blocked-index"
	MessageMatchIndex = "matchId-createdAt-index"
)
