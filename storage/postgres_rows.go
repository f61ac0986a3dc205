package storage

import (
	"time"

	"spark_server/models"
)

// Relational rows for PostgresStore. The unique indexes on each pair are what
// make a second like, match or block for the same pair impossible.

type profileRow struct {
	UserID      string    `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	DisplayName string    `gorm:"column:display_name;type:varchar(50);not null"`
	Bio         string    `gorm:"column:bio;type:varchar(500)"`
	Age         *int      `gorm:"column:age"`
	Gender      string    `gorm:"column:gender;type:varchar(10)"`
	Location    string    `gorm:"column:location;type:varchar(100)"`
	Interests   []string  `gorm:"column:interests;serializer:json"`
	Avatar      string    `gorm:"column:avatar"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (profileRow) TableName() string { return "profiles" }

type likeRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	FromUser  string    `gorm:"column:from_user;type:varchar(64);not null;uniqueIndex:uidx_like_pair"`
	ToUser    string    `gorm:"column:to_user;type:varchar(64);not null;uniqueIndex:uidx_like_pair;index"`
	Status    string    `gorm:"column:status;type:varchar(10);not null;default:'pending'"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (likeRow) TableName() string { return "likes" }

type matchRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	UserA     string    `gorm:"column:user_a;type:varchar(64);not null;uniqueIndex:uidx_match_pair"`
	UserB     string    `gorm:"column:user_b;type:varchar(64);not null;uniqueIndex:uidx_match_pair;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (matchRow) TableName() string { return "matches" }

type blockRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	Blocker   string    `gorm:"column:blocker;type:varchar(64);not null;uniqueIndex:uidx_block_pair"`
	Blocked   string    `gorm:"column:blocked;type:varchar(64);not null;uniqueIndex:uidx_block_pair;index"`
	Reason    string    `gorm:"column:reason;type:varchar(200)"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (blockRow) TableName() string { return "blocks" }

type messageRow struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	MatchID   string    `gorm:"column:match_id;type:uuid;not null;index:idx_message_order,priority:1"`
	Sender    string    `gorm:"column:sender;type:varchar(64);not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	IsRead    bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;index:idx_message_order,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func newProfileRow(p models.Profile) profileRow {
	return profileRow{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Age:         p.Age,
		Gender:      string(p.Gender),
		Location:    p.Location,
		Interests:   p.Interests,
		Avatar:      p.Avatar,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r profileRow) model() models.Profile {
	return models.Profile{
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Bio:         r.Bio,
		Age:         r.Age,
		Gender:      models.Gender(r.Gender),
		Location:    r.Location,
		Interests:   r.Interests,
		Avatar:      r.Avatar,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newLikeRow(l models.Like) likeRow {
	return likeRow{
		ID:        l.ID,
		FromUser:  l.FromUser,
		ToUser:    l.ToUser,
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (r likeRow) model() models.Like {
	return models.Like{
		ID:        r.ID,
		FromUser:  r.FromUser,
		ToUser:    r.ToUser,
		Status:    models.LikeStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newMatchRow(m models.Match) matchRow {
	return matchRow{ID: m.ID, UserA: m.UserA, UserB: m.UserB, CreatedAt: m.CreatedAt}
}

func (r matchRow) model() models.Match {
	return models.Match{ID: r.ID, UserA: r.UserA, UserB: r.UserB, CreatedAt: r.CreatedAt}
}

func newBlockRow(b models.Block) blockRow {
	return blockRow{ID: b.ID, Blocker: b.Blocker, Blocked: b.Blocked, Reason: b.Reason, CreatedAt: b.CreatedAt}
}

func (r blockRow) model() models.Block {
	return models.Block{ID: r.ID, Blocker: r.Blocker, Blocked: r.Blocked, Reason: r.Reason, CreatedAt: r.CreatedAt}
}

func newMessageRow(m models.Message) messageRow {
	return messageRow{
		ID:        m.ID,
		MatchID:   m.MatchID,
		Sender:    m.Sender,
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
}

func (r messageRow) model() models.Message {
	return models.Message{
		ID:        r.ID,
		MatchID:   r.MatchID,
		Sender:    r.Sender,
		Content:   r.Content,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}
