package storage

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"spark_server/models"
)

const messageSortLayout = "2006-01-02T15:04:05.000000000Z"

// Item shapes stored in DynamoDB. Each embeds the domain model next to its
// table keys.

type likeItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	models.Like
}

type matchItem struct {
	PK string `dynamodbav:"PK"`
	// MessageSeq counts messages ever appended to the match.
	MessageSeq int64 `dynamodbav:"messageSeq,omitempty"`
	models.Match
}

type blockItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	models.Block
}

type messageItem struct {
	SK string `dynamodbav:"SK"`
	models.Message
}

func userPK(userID string) string   { return "USER#" + userID }
func likeSK(toUser string) string   { return "LIKE#" + toUser }
func blockSK(blocked string) string { return "BLOCK#" + blocked }
func messageSK(msg models.Message) string {
	return msg.CreatedAt.UTC().Format(messageSortLayout) + "#" + msg.ID
}

// pairPK is the match key of two users, identical for both orders.
func pairPK(a, b string) string {
	a, b = models.CanonicalPair(a, b)
	return "PAIR#" + a + "#" + b
}

func stringValue(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func profileKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"userId": stringValue(userID)}
}

func likeKey(from, to string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": stringValue(userPK(from)),
		"SK": stringValue(likeSK(to)),
	}
}

func matchKey(a, b string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"PK": stringValue(pairPK(a, b))}
}

func blockKey(blocker, blocked string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": stringValue(userPK(blocker)),
		"SK": stringValue(blockSK(blocked)),
	}
}

func messageKey(matchID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"matchId": stringValue(matchID),
		"SK":      stringValue(sk),
	}
}

func newLikeItem(l models.Like) likeItem {
	return likeItem{PK: userPK(l.FromUser), SK: likeSK(l.ToUser), Like: l}
}

func newMatchItem(m models.Match) matchItem {
	return matchItem{PK: pairPK(m.UserA, m.UserB), Match: m}
}

func newBlockItem(b models.Block) blockItem {
	return blockItem{PK: userPK(b.Blocker), SK: blockSK(b.Blocked), Block: b}
}

func newMessageItem(m models.Message) messageItem {
	return messageItem{SK: messageSK(m), Message: m}
}

// guard is a condition expression with its placeholders.
type guard struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

var absent = guard{expr: "attribute_not_exists(PK)"}

func likeGuard(l *models.Like) guard {
	if l == nil {
		return absent
	}
	return guard{
		expr:  "likeId = :guardLikeId AND #guardStatus = :guardStatus",
		names: map[string]string{"#guardStatus": "status"},
		values: map[string]types.AttributeValue{
			":guardLikeId": stringValue(l.ID),
			":guardStatus": stringValue(string(l.Status)),
		},
	}
}

func matchGuard(m *models.Match) guard {
	if m == nil {
		return absent
	}
	return guard{
		expr:   "matchId = :guardMatchId",
		values: map[string]types.AttributeValue{":guardMatchId": stringValue(m.ID)},
	}
}

func blockGuard(b *models.Block) guard {
	if b == nil {
		return absent
	}
	return guard{
		expr:   "blockId = :guardBlockId",
		values: map[string]types.AttributeValue{":guardBlockId": stringValue(b.ID)},
	}
}

// and combines g with an extra condition and its placeholder values.
func (g guard) and(expr string, values map[string]types.AttributeValue) guard {
	merged := make(map[string]types.AttributeValue, len(g.values)+len(values))
	for k, v := range g.values {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return guard{expr: g.expr + " AND " + expr, names: g.names, values: merged}
}

func (g guard) check(table string, key map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 &table,
		Key:                       key,
		ConditionExpression:       &g.expr,
		ExpressionAttributeNames:  nonEmptyNames(g.names),
		ExpressionAttributeValues: nonEmptyValues(g.values),
	}}
}

func (g guard) put(table string, item map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                 &table,
		Item:                      item,
		ConditionExpression:       &g.expr,
		ExpressionAttributeNames:  nonEmptyNames(g.names),
		ExpressionAttributeValues: nonEmptyValues(g.values),
	}}
}

func (g guard) delete(table string, key map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 &table,
		Key:                       key,
		ConditionExpression:       &g.expr,
		ExpressionAttributeNames:  nonEmptyNames(g.names),
		ExpressionAttributeValues: nonEmptyValues(g.values),
	}}
}

func (g guard) update(table string, key map[string]types.AttributeValue, update string, names map[string]string, values map[string]types.AttributeValue) types.TransactWriteItem {
	allNames := map[string]string{}
	for k, v := range g.names {
		allNames[k] = v
	}
	for k, v := range names {
		allNames[k] = v
	}
	allValues := map[string]types.AttributeValue{}
	for k, v := range g.values {
		allValues[k] = v
	}
	for k, v := range values {
		allValues[k] = v
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 &table,
		Key:                       key,
		UpdateExpression:          &update,
		ConditionExpression:       &g.expr,
		ExpressionAttributeNames:  nonEmptyNames(allNames),
		ExpressionAttributeValues: nonEmptyValues(allValues),
	}}
}

func formatTime(t time.Time) types.AttributeValue {
	return stringValue(t.UTC().Format(time.RFC3339Nano))
}

// tableNames resolves table names under a deployment prefix.
type tableNames struct {
	profiles string
	likes    string
	matches  string
	blocks   string
	messages string
}

func newTableNames(prefix string) tableNames {
	prefix = strings.TrimSpace(prefix)
	return tableNames{
		profiles: prefix + models.ProfilesTable,
		likes:    prefix + models.LikesTable,
		matches:  prefix + models.MatchesTable,
		blocks:   prefix + models.BlocksTable,
		messages: prefix + models.MessagesTable,
	}
}
