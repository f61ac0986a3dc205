package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"spark_server/models"
)

// DynamoStore keeps the social graph in five DynamoDB tables.
//
// Likes and blocks are keyed by ordered pair (PK USER#from, SK LIKE#to or
// BLOCK#to) and matches by canonical pair (PK PAIR#a#b), so every guarded
// commit touches a fixed, small set of items and unrelated pairs never
// contend. Messages are keyed by match ID and a sortable time#id key.
//
// Lookups by ID go through GSIs, which are eventually consistent: a hit is
// confirmed with a consistent read of the base item, but an item created a
// moment ago may still be missed and reported as not found.
type DynamoStore struct {
	dynamo *DynamoService
	tables tableNames
	logger *slog.Logger
}

// NewDynamoStore builds a store on client with table names under prefix.
func NewDynamoStore(client DynamoAPI, prefix string, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{
		dynamo: &DynamoService{Client: client, Logger: logger},
		tables: newTableNames(prefix),
		logger: logger,
	}
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	return s.dynamo.DescribeTable(ctx, s.tables.profiles)
}

// --- profiles ---

func (s *DynamoStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.dynamo.GetItem(ctx, s.tables.profiles, profileKey(userID), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *DynamoStore) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	seen := make(map[string]bool, len(userIDs))
	keys := make([]map[string]types.AttributeValue, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, profileKey(id))
	}
	out := make(map[string]models.Profile, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	items, err := s.dynamo.BatchGetItems(ctx, s.tables.profiles, keys)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	if err := attributevalue.UnmarshalListOfMaps(items, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profiles: %w", err)
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

func (s *DynamoStore) PutProfile(ctx context.Context, profile models.Profile) error {
	return s.dynamo.PutItem(ctx, s.tables.profiles, profile)
}

// SaveProfile puts profile conditioned on the stored updatedAt still being
// prev's, or on no profile existing when prev is nil.
func (s *DynamoStore) SaveProfile(ctx context.Context, profile models.Profile, prev *models.Profile) error {
	condition := "attribute_not_exists(userId)"
	var values map[string]types.AttributeValue
	if prev != nil {
		updatedAt, err := attributevalue.Marshal(prev.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to marshal profile version: %w", err)
		}
		condition = "updatedAt = :prevUpdatedAt"
		values = map[string]types.AttributeValue{":prevUpdatedAt": updatedAt}
	}
	err := s.dynamo.PutItemIf(ctx, s.tables.profiles, profile, condition, values)
	if isConditionFailed(err) {
		return fmt.Errorf("%w: profile %s changed", models.ErrConflict, profile.UserID)
	}
	return err
}

// ListProfiles scans the profile table. DynamoDB's contains() is case
// sensitive, so the search filter runs after the scan.
func (s *DynamoStore) ListProfiles(ctx context.Context, search string) ([]models.Profile, error) {
	items, err := s.dynamo.ScanAll(ctx, s.tables.profiles)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	if err := attributevalue.UnmarshalListOfMaps(items, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profiles: %w", err)
	}
	out := profiles[:0]
	for _, p := range profiles {
		if p.MatchesSearch(search) {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- likes ---

func (s *DynamoStore) GetLike(ctx context.Context, likeID string) (*models.Like, error) {
	likes, err := s.queryLikes(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.likes),
		IndexName:                 aws.String(models.LikeIDIndex),
		KeyConditionExpression:    aws.String("#likeId = :likeId"),
		ExpressionAttributeNames:  map[string]string{"#likeId": "likeId"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":likeId": stringValue(likeID)},
	})
	if err != nil {
		return nil, err
	}
	if len(likes) == 0 {
		return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
	}
	var row likeItem
	err = s.dynamo.GetItem(ctx, s.tables.likes, likeKey(likes[0].FromUser, likes[0].ToUser), &row)
	if errors.Is(err, models.ErrNotFound) || (err == nil && row.ID != likeID) {
		return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
	}
	if err != nil {
		return nil, err
	}
	return &row.Like, nil
}

func (s *DynamoStore) ListLikesFrom(ctx context.Context, userID string) ([]models.Like, error) {
	return s.queryLikes(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.likes),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     stringValue(userPK(userID)),
			":prefix": stringValue("LIKE#"),
		},
		ConsistentRead: aws.Bool(true),
	})
}

func (s *DynamoStore) ListLikesTo(ctx context.Context, userID string) ([]models.Like, error) {
	return s.queryLikes(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.likes),
		IndexName:                 aws.String(models.ReceiverIndex),
		KeyConditionExpression:    aws.String("#toUser = :toUser"),
		ExpressionAttributeNames:  map[string]string{"#toUser": "toUser"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":toUser": stringValue(userID)},
	})
}

func (s *DynamoStore) queryLikes(ctx context.Context, input *dynamodb.QueryInput) ([]models.Like, error) {
	items, err := s.dynamo.QueryAll(ctx, input)
	if err != nil {
		return nil, err
	}
	var rows []likeItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal likes: %w", err)
	}
	likes := make([]models.Like, 0, len(rows))
	for _, row := range rows {
		likes = append(likes, row.Like)
	}
	return likes, nil
}

func (s *DynamoStore) UpdateLikeStatus(ctx context.Context, like models.Like, status models.LikeStatus) error {
	g := likeGuard(&like)
	values := map[string]types.AttributeValue{
		":newStatus": stringValue(string(status)),
		":updatedAt": formatTime(like.UpdatedAt),
	}
	for k, v := range g.values {
		values[k] = v
	}
	err := s.dynamo.UpdateItem(ctx, s.tables.likes, likeKey(like.FromUser, like.ToUser),
		"SET #guardStatus = :newStatus, updatedAt = :updatedAt", g.expr, g.names, values)
	if isConditionFailed(err) {
		return fmt.Errorf("%w: like %s changed", models.ErrConflict, like.ID)
	}
	return err
}

// --- pair commits ---

func (s *DynamoStore) PairState(ctx context.Context, actor, other string) (*PairState, error) {
	gets := []types.TransactGetItem{
		{Get: &types.Get{TableName: aws.String(s.tables.likes), Key: likeKey(actor, other)}},
		{Get: &types.Get{TableName: aws.String(s.tables.likes), Key: likeKey(other, actor)}},
		{Get: &types.Get{TableName: aws.String(s.tables.matches), Key: matchKey(actor, other)}},
		{Get: &types.Get{TableName: aws.String(s.tables.blocks), Key: blockKey(actor, other)}},
		{Get: &types.Get{TableName: aws.String(s.tables.blocks), Key: blockKey(other, actor)}},
	}
	items, err := s.dynamo.TransactGet(ctx, gets)
	if err != nil {
		return nil, err
	}

	state := &PairState{Actor: actor, Other: other}
	if state.Outgoing, err = unmarshalLike(items[0]); err != nil {
		return nil, err
	}
	if state.Incoming, err = unmarshalLike(items[1]); err != nil {
		return nil, err
	}
	if items[2] != nil {
		var row matchItem
		if err := attributevalue.UnmarshalMap(items[2], &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match: %w", err)
		}
		state.Match = &row.Match
	}
	for _, item := range items[3:] {
		if item == nil {
			continue
		}
		var row blockItem
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block: %w", err)
		}
		state.Blocks = append(state.Blocks, row.Block)
	}
	return state, nil
}

func unmarshalLike(item map[string]types.AttributeValue) (*models.Like, error) {
	if item == nil {
		return nil, nil
	}
	var row likeItem
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal like: %w", err)
	}
	return &row.Like, nil
}

func (s *DynamoStore) CommitLike(ctx context.Context, commit LikeCommit) error {
	items, err := s.likeCommitItems(commit)
	if err != nil {
		return err
	}
	if err := s.dynamo.TransactWrite(ctx, items); err != nil {
		return s.commitError(err, commit.Snapshot)
	}
	return nil
}

// likeCommitItems guards all five pair items: the outgoing like is written,
// the incoming like is either accepted or checked, the match is either
// inserted or checked absent, and both block items are checked.
func (s *DynamoStore) likeCommitItems(commit LikeCommit) ([]types.TransactWriteItem, error) {
	snap := commit.Snapshot
	like, err := attributevalue.MarshalMap(newLikeItem(commit.Like))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal like: %w", err)
	}

	items := []types.TransactWriteItem{
		likeGuard(snap.Outgoing).put(s.tables.likes, like),
	}

	reverseKey := likeKey(snap.Other, snap.Actor)
	if commit.Accept != nil {
		items = append(items, likeGuard(snap.Incoming).update(s.tables.likes, reverseKey,
			"SET #guardStatus = :accepted, updatedAt = :updatedAt",
			nil,
			map[string]types.AttributeValue{
				":accepted":  stringValue(string(models.LikeStatusAccepted)),
				":updatedAt": formatTime(commit.Accept.UpdatedAt),
			}))
	} else {
		items = append(items, likeGuard(snap.Incoming).check(s.tables.likes, reverseKey))
	}

	if commit.Match != nil {
		match, err := attributevalue.MarshalMap(newMatchItem(*commit.Match))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal match: %w", err)
		}
		items = append(items, matchGuard(snap.Match).put(s.tables.matches, match))
	} else {
		items = append(items, matchGuard(snap.Match).check(s.tables.matches, matchKey(snap.Actor, snap.Other)))
	}

	items = append(items,
		blockGuard(snap.BlockBy(snap.Actor)).check(s.tables.blocks, blockKey(snap.Actor, snap.Other)),
		blockGuard(snap.BlockBy(snap.Other)).check(s.tables.blocks, blockKey(snap.Other, snap.Actor)),
	)
	return items, nil
}

// blockCommitSize is the number of pair items in a block commit; the rest of
// the transaction is left for the match's messages.
const blockCommitSize = 5

func (s *DynamoStore) CommitBlock(ctx context.Context, commit BlockCommit) error {
	snap := commit.Snapshot
	var purge *messagePurge
	if snap.Match != nil {
		var err error
		purge, err = s.prepareMessagePurge(ctx, *snap.Match, maxTransactItems-blockCommitSize)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: pair %s/%s changed", models.ErrConflict, snap.Actor, snap.Other)
		}
		if err != nil {
			return err
		}
	}

	items, err := s.blockCommitItems(commit, purge)
	if err != nil {
		return err
	}
	if err := s.dynamo.TransactWrite(ctx, items); err != nil {
		return s.commitError(err, snap)
	}
	return nil
}

// blockCommitItems inserts the block and deletes whatever likes and match the
// snapshot saw, each guarded so nothing new slipped in meanwhile. The match's
// messages go in the same transaction.
func (s *DynamoStore) blockCommitItems(commit BlockCommit, purge *messagePurge) ([]types.TransactWriteItem, error) {
	snap := commit.Snapshot
	block, err := attributevalue.MarshalMap(newBlockItem(commit.Block))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block: %w", err)
	}

	items := []types.TransactWriteItem{
		blockGuard(snap.BlockBy(snap.Actor)).put(s.tables.blocks, block),
		blockGuard(snap.BlockBy(snap.Other)).check(s.tables.blocks, blockKey(snap.Other, snap.Actor)),
	}

	for _, slot := range []struct {
		like     *models.Like
		from, to string
	}{
		{snap.Outgoing, snap.Actor, snap.Other},
		{snap.Incoming, snap.Other, snap.Actor},
	} {
		if slot.like != nil {
			items = append(items, likeGuard(slot.like).delete(s.tables.likes, likeKey(slot.from, slot.to)))
		} else {
			items = append(items, absent.check(s.tables.likes, likeKey(slot.from, slot.to)))
		}
	}

	key := matchKey(snap.Actor, snap.Other)
	if snap.Match != nil {
		items = append(items, purge.guard(snap.Match).delete(s.tables.matches, key))
		items = append(items, purge.deletes(s.tables.messages)...)
	} else {
		items = append(items, absent.check(s.tables.matches, key))
	}
	return items, nil
}

// commitError maps a failed guarded transaction to a conflict. Every item in
// a pair commit is guarded by the snapshot, so any cancellation means the
// pair moved on.
func (s *DynamoStore) commitError(err error, snap PairState) error {
	if _, ok := cancellationReasons(err); ok || isTransactionConflict(err) {
		s.logger.Info("pair commit lost race", "actor", snap.Actor, "other", snap.Other)
		return fmt.Errorf("%w: pair %s/%s changed", models.ErrConflict, snap.Actor, snap.Other)
	}
	return err
}

// --- matches ---

func (s *DynamoStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	matches, err := s.queryMatches(ctx, models.MatchIDIndex, "matchId", matchID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: match %s", models.ErrNotFound, matchID)
	}
	row, err := s.loadMatch(ctx, matches[0])
	if err != nil {
		return nil, err
	}
	return &row.Match, nil
}

// loadMatch reads match's pair item consistently. A missing item or one now
// holding a different match yields models.ErrNotFound.
func (s *DynamoStore) loadMatch(ctx context.Context, match models.Match) (*matchItem, error) {
	var row matchItem
	err := s.dynamo.GetItem(ctx, s.tables.matches, matchKey(match.UserA, match.UserB), &row)
	if errors.Is(err, models.ErrNotFound) || (err == nil && row.ID != match.ID) {
		return nil, fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *DynamoStore) ListMatchesFor(ctx context.Context, userID string) ([]models.Match, error) {
	asA, err := s.queryMatches(ctx, models.MatchUserAIndex, "userA", userID)
	if err != nil {
		return nil, err
	}
	asB, err := s.queryMatches(ctx, models.MatchUserBIndex, "userB", userID)
	if err != nil {
		return nil, err
	}
	return append(asA, asB...), nil
}

func (s *DynamoStore) queryMatches(ctx context.Context, index, attribute, value string) ([]models.Match, error) {
	items, err := s.dynamo.QueryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.matches),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#attr = :value"),
		ExpressionAttributeNames:  map[string]string{"#attr": attribute},
		ExpressionAttributeValues: map[string]types.AttributeValue{":value": stringValue(value)},
	})
	if err != nil {
		return nil, err
	}
	var rows []matchItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matches: %w", err)
	}
	matches := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, row.Match)
	}
	return matches, nil
}

// DeleteMatch removes the match row and its messages in one transaction.
func (s *DynamoStore) DeleteMatch(ctx context.Context, match models.Match) error {
	purge, err := s.prepareMessagePurge(ctx, match, maxTransactItems-1)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		purge.guard(&match).delete(s.tables.matches, matchKey(match.UserA, match.UserB)),
	}
	items = append(items, purge.deletes(s.tables.messages)...)
	err = s.dynamo.TransactWrite(ctx, items)
	if err == nil {
		s.logger.Info("deleted match", "match_id", match.ID, "messages", len(purge.keys))
		return nil
	}

	reasons, cancelled := cancellationReasons(err)
	if !cancelled && !isTransactionConflict(err) {
		return err
	}
	if cancelled && len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		if _, err := s.loadMatch(ctx, match); errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	// a message arrived after the purge was planned
	return fmt.Errorf("%w: match %s busy", models.ErrConflict, match.ID)
}

// messagePurge is the rest of a conversation, deleted in the same
// transaction as its match.
type messagePurge struct {
	seq  int64
	keys []map[string]types.AttributeValue
}

// prepareMessagePurge reads match's append counter and message keys, then
// batch-deletes the oldest messages until the rest fit in room transaction
// items. The trim runs while the match still exists, so a failure part way
// leaves a shorter conversation, never messages without their match.
func (s *DynamoStore) prepareMessagePurge(ctx context.Context, match models.Match, room int) (*messagePurge, error) {
	row, err := s.loadMatch(ctx, match)
	if err != nil {
		return nil, err
	}

	input := s.messageQuery(match.ID)
	input.ProjectionExpression = aws.String("matchId, SK")
	keys, err := s.dynamo.QueryAll(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of match %s: %w", match.ID, err)
	}
	if extra := len(keys) - room; extra > 0 {
		if err := s.dynamo.BatchDeleteItems(ctx, s.tables.messages, keys[:extra]); err != nil {
			return nil, err
		}
		s.logger.Info("trimmed messages ahead of match delete", "match_id", match.ID, "count", extra)
		keys = keys[extra:]
	}
	return &messagePurge{seq: row.MessageSeq, keys: keys}, nil
}

// guard extends the match guard with the append counter the purge was
// planned against.
func (p *messagePurge) guard(m *models.Match) guard {
	g := matchGuard(m)
	if p == nil {
		return g
	}
	if p.seq == 0 {
		return g.and("attribute_not_exists(messageSeq)", nil)
	}
	return g.and("messageSeq = :guardSeq", map[string]types.AttributeValue{
		":guardSeq": &types.AttributeValueMemberN{Value: strconv.FormatInt(p.seq, 10)},
	})
}

func (p *messagePurge) deletes(table string) []types.TransactWriteItem {
	if p == nil {
		return nil
	}
	items := make([]types.TransactWriteItem, 0, len(p.keys))
	for _, key := range p.keys {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(table),
			Key:       key,
		}})
	}
	return items
}

// --- blocks ---

func (s *DynamoStore) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	blocks, err := s.queryBlocks(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.blocks),
		IndexName:                 aws.String(models.BlockIDIndex),
		KeyConditionExpression:    aws.String("#blockId = :blockId"),
		ExpressionAttributeNames:  map[string]string{"#blockId": "blockId"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":blockId": stringValue(blockID)},
	})
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: block %s", models.ErrNotFound, blockID)
	}
	var row blockItem
	err = s.dynamo.GetItem(ctx, s.tables.blocks, blockKey(blocks[0].Blocker, blocks[0].Blocked), &row)
	if errors.Is(err, models.ErrNotFound) || (err == nil && row.ID != blockID) {
		return nil, fmt.Errorf("%w: block %s", models.ErrNotFound, blockID)
	}
	if err != nil {
		return nil, err
	}
	return &row.Block, nil
}

func (s *DynamoStore) ListBlocksBy(ctx context.Context, blocker string) ([]models.Block, error) {
	return s.queryBlocks(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.blocks),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     stringValue(userPK(blocker)),
			":prefix": stringValue("BLOCK#"),
		},
		ConsistentRead: aws.Bool(true),
	})
}

func (s *DynamoStore) ListBlocksAgainst(ctx context.Context, blocked string) ([]models.Block, error) {
	return s.queryBlocks(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.blocks),
		IndexName:                 aws.String(models.BlockedUserIndex),
		KeyConditionExpression:    aws.String("#blocked = :blocked"),
		ExpressionAttributeNames:  map[string]string{"#blocked": "blocked"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":blocked": stringValue(blocked)},
	})
}

func (s *DynamoStore) queryBlocks(ctx context.Context, input *dynamodb.QueryInput) ([]models.Block, error) {
	items, err := s.dynamo.QueryAll(ctx, input)
	if err != nil {
		return nil, err
	}
	var rows []blockItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blocks: %w", err)
	}
	blocks := make([]models.Block, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, row.Block)
	}
	return blocks, nil
}

func (s *DynamoStore) DeleteBlock(ctx context.Context, block models.Block) error {
	g := blockGuard(&block)
	err := s.dynamo.DeleteItem(ctx, s.tables.blocks, blockKey(block.Blocker, block.Blocked), g.expr, g.values)
	if isConditionFailed(err) {
		return fmt.Errorf("%w: block %s", models.ErrNotFound, block.ID)
	}
	return err
}

// --- messages ---

// AppendMessage writes the message in a transaction that also bumps the
// match's append counter and checks both block items; the cancellation index
// says which failed.
func (s *DynamoStore) AppendMessage(ctx context.Context, match models.Match, msg models.Message) error {
	items, err := s.appendMessageItems(match, msg)
	if err != nil {
		return err
	}
	err = s.dynamo.TransactWrite(ctx, items)
	if err == nil {
		return nil
	}
	reasons, ok := cancellationReasons(err)
	if !ok {
		if isTransactionConflict(err) {
			return fmt.Errorf("%w: match %s busy", models.ErrConflict, match.ID)
		}
		return err
	}
	return appendCancellation(reasons, match.ID)
}

func (s *DynamoStore) appendMessageItems(match models.Match, msg models.Message) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(newMessageItem(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	noSK := guard{expr: "attribute_not_exists(SK)"}
	return []types.TransactWriteItem{
		matchGuard(&match).update(s.tables.matches, matchKey(match.UserA, match.UserB),
			"ADD messageSeq :one", nil,
			map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}}),
		absent.check(s.tables.blocks, blockKey(match.UserA, match.UserB)),
		absent.check(s.tables.blocks, blockKey(match.UserB, match.UserA)),
		noSK.put(s.tables.messages, item),
	}, nil
}

func appendCancellation(reasons []types.CancellationReason, matchID string) error {
	failed := func(i int) bool {
		return i < len(reasons) && aws.ToString(reasons[i].Code) == "ConditionalCheckFailed"
	}
	switch {
	case failed(0):
		return fmt.Errorf("%w: match %s", models.ErrNotFound, matchID)
	case failed(1), failed(2):
		return fmt.Errorf("%w: participants of match %s", models.ErrBlocked, matchID)
	}
	return fmt.Errorf("%w: match %s busy", models.ErrConflict, matchID)
}

func (s *DynamoStore) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	items, err := s.dynamo.QueryAll(ctx, s.messageQuery(matchID))
	if err != nil {
		return nil, err
	}
	var rows []messageItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.Message)
	}
	// Sort keys already order the page; this keeps identical timestamps stable.
	sort.SliceStable(msgs, func(i, j int) bool {
		return messageSK(msgs[i]) < messageSK(msgs[j])
	})
	return msgs, nil
}

func (s *DynamoStore) messageQuery(matchID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                 aws.String(s.tables.messages),
		KeyConditionExpression:    aws.String("matchId = :matchId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":matchId": stringValue(matchID)},
		ScanIndexForward:          aws.Bool(true),
		ConsistentRead:            aws.Bool(true),
	}
}

func (s *DynamoStore) MarkMessagesRead(ctx context.Context, matchID, reader string) (int, error) {
	msgs, err := s.ListMessages(ctx, matchID)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, msg := range msgs {
		if msg.Sender == reader || msg.IsRead {
			continue
		}
		err := s.dynamo.UpdateItem(ctx, s.tables.messages, messageKey(matchID, messageSK(msg)),
			"SET isRead = :read", "attribute_exists(SK)", nil,
			map[string]types.AttributeValue{":read": &types.AttributeValueMemberBOOL{Value: true}})
		if isConditionFailed(err) {
			// purged by a concurrent unmatch
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
