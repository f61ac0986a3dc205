package models

import "time"

type Message struct {
	ID        string    `dynamodbav:"messageId" json:"id"`
	MatchID   string    `dynamodbav:"matchId" json:"match"`
	Sender    string    `dynamodbav:"sender" json:"sender"`
	Content   string    `dynamodbav:"content" json:"content"`
	IsRead    bool      `dynamodbav:"isRead" json:"is_read"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"created_at"`
}

// MessageWithSender annotates a message with the sender's display name.
type MessageWithSender struct {
	Message
	SenderDisplayName string `json:"sender_display_name"`
}
