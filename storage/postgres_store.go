package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"spark_server/models"
)

// PostgreSQL error codes mapped onto domain errors.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgInvalidTextRepr      = "22P02"
)

// PostgresStore keeps the social graph in PostgreSQL through gorm.
//
// Pair-scoped writes take a transaction-level advisory lock on the canonical
// pair key before re-reading the pair, so concurrent commits for the same two
// users queue up while other pairs proceed untouched.
type PostgresStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := NewPostgresStore(db, logger)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	logger.Info("database connection and migration successful")
	return store, nil
}

// NewPostgresStore wraps an already opened connection.
func NewPostgresStore(db *gorm.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Migrate creates or updates the tables and indexes.
func (s *PostgresStore) Migrate() error {
	if err := s.db.AutoMigrate(&profileRow{}, &likeRow{}, &matchRow{}, &blockRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- profiles ---

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: profile %s", models.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", userID, err)
	}
	p := row.model()
	return &p, nil
}

func (s *PostgresStore) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []profileRow
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = row.model()
	}
	return out, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, profile models.Profile) error {
	row := newProfileRow(profile)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.UserID, err)
	}
	return nil
}

// SaveProfile locks the current row, if any, and writes only when its
// updated_at is still the one prev carried.
func (s *PostgresStore) SaveProfile(ctx context.Context, profile models.Profile, prev *models.Profile) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []profileRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", profile.UserID).Limit(1).Find(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to lock profile %s: %w", profile.UserID, err)
		}
		var current *models.Profile
		if len(rows) > 0 {
			p := rows[0].model()
			current = &p
		}
		if !profileUnchanged(current, prev) {
			return fmt.Errorf("%w: profile %s changed", models.ErrConflict, profile.UserID)
		}

		row := newProfileRow(profile)
		if current == nil {
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", profile.UserID, mapPgError(err))
	}
	return nil
}

// ListProfiles narrows with ILIKE in SQL and then applies the exact search
// rule, since the term's own % and _ act as wildcards in SQL.
func (s *PostgresStore) ListProfiles(ctx context.Context, search string) ([]models.Profile, error) {
	query := s.db.WithContext(ctx).Model(&profileRow{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"display_name ILIKE ? OR bio ILIKE ? OR location ILIKE ? OR interests::text ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	var rows []profileRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	profiles := make([]models.Profile, 0, len(rows))
	for _, row := range rows {
		if p := row.model(); p.MatchesSearch(search) {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// --- likes ---

func (s *PostgresStore) GetLike(ctx context.Context, likeID string) (*models.Like, error) {
	if !isRowID(likeID) {
		return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
	}
	var row likeRow
	err := s.db.WithContext(ctx).Where("id = ?", likeID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: like %s", models.ErrNotFound, likeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load like %s: %w", likeID, mapPgError(err))
	}
	like := row.model()
	return &like, nil
}

func (s *PostgresStore) ListLikesFrom(ctx context.Context, userID string) ([]models.Like, error) {
	return s.findLikes(ctx, "from_user = ?", userID)
}

func (s *PostgresStore) ListLikesTo(ctx context.Context, userID string) ([]models.Like, error) {
	return s.findLikes(ctx, "to_user = ?", userID)
}

func (s *PostgresStore) findLikes(ctx context.Context, where string, args ...interface{}) ([]models.Like, error) {
	var rows []likeRow
	if err := s.db.WithContext(ctx).Where(where, args...).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	likes := make([]models.Like, 0, len(rows))
	for _, row := range rows {
		likes = append(likes, row.model())
	}
	return likes, nil
}

func (s *PostgresStore) UpdateLikeStatus(ctx context.Context, like models.Like, status models.LikeStatus) error {
	res := s.db.WithContext(ctx).Model(&likeRow{}).
		Where("id = ? AND status = ?", like.ID, string(like.Status)).
		Updates(map[string]interface{}{"status": string(status), "updated_at": like.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("failed to update like %s: %w", like.ID, mapPgError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: like %s changed", models.ErrConflict, like.ID)
	}
	return nil
}

// --- pair commits ---

func (s *PostgresStore) PairState(ctx context.Context, actor, other string) (*PairState, error) {
	state, err := loadPairState(s.db.WithContext(ctx), actor, other)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func loadPairState(db *gorm.DB, actor, other string) (PairState, error) {
	state := PairState{Actor: actor, Other: other}

	var likes []likeRow
	err := db.Where("(from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)", actor, other, other, actor).
		Find(&likes).Error
	if err != nil {
		return state, fmt.Errorf("failed to load pair likes: %w", err)
	}
	for _, row := range likes {
		like := row.model()
		if like.FromUser == actor {
			state.Outgoing = &like
		} else {
			state.Incoming = &like
		}
	}

	a, b := models.CanonicalPair(actor, other)
	var matches []matchRow
	if err := db.Where("user_a = ? AND user_b = ?", a, b).Limit(1).Find(&matches).Error; err != nil {
		return state, fmt.Errorf("failed to load pair match: %w", err)
	}
	if len(matches) > 0 {
		m := matches[0].model()
		state.Match = &m
	}

	var blocks []blockRow
	err = db.Where("(blocker = ? AND blocked = ?) OR (blocker = ? AND blocked = ?)", actor, other, other, actor).
		Find(&blocks).Error
	if err != nil {
		return state, fmt.Errorf("failed to load pair blocks: %w", err)
	}
	for _, row := range blocks {
		state.Blocks = append(state.Blocks, row.model())
	}
	return state, nil
}

// inPairTx runs fn in a serializable transaction holding the pair lock.
func (s *PostgresStore) inPairTx(ctx context.Context, a, b string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", pairPK(a, b)).Error; err != nil {
			return fmt.Errorf("failed to lock pair: %w", err)
		}
		return fn(tx)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return mapPgError(err)
}

func (s *PostgresStore) guardPair(tx *gorm.DB, snap PairState) error {
	current, err := loadPairState(tx, snap.Actor, snap.Other)
	if err != nil {
		return err
	}
	if !current.Same(snap) {
		return fmt.Errorf("%w: pair %s/%s changed", models.ErrConflict, snap.Actor, snap.Other)
	}
	return nil
}

func (s *PostgresStore) CommitLike(ctx context.Context, commit LikeCommit) error {
	snap := commit.Snapshot
	return s.inPairTx(ctx, snap.Actor, snap.Other, func(tx *gorm.DB) error {
		if err := s.guardPair(tx, snap); err != nil {
			return err
		}

		like := newLikeRow(commit.Like)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "from_user"}, {Name: "to_user"}},
			DoUpdates: clause.AssignmentColumns([]string{"id", "status", "created_at", "updated_at"}),
		}).Create(&like).Error
		if err != nil {
			return fmt.Errorf("failed to write like: %w", err)
		}

		if commit.Accept != nil {
			err := tx.Model(&likeRow{}).Where("id = ?", commit.Accept.ID).
				Updates(map[string]interface{}{
					"status":     string(models.LikeStatusAccepted),
					"updated_at": commit.Accept.UpdatedAt,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to accept like %s: %w", commit.Accept.ID, err)
			}
		}
		if commit.Match != nil {
			match := newMatchRow(*commit.Match)
			if err := tx.Create(&match).Error; err != nil {
				return fmt.Errorf("failed to create match: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) CommitBlock(ctx context.Context, commit BlockCommit) error {
	snap := commit.Snapshot
	return s.inPairTx(ctx, snap.Actor, snap.Other, func(tx *gorm.DB) error {
		if err := s.guardPair(tx, snap); err != nil {
			return err
		}

		err := tx.Where("(from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)",
			snap.Actor, snap.Other, snap.Other, snap.Actor).Delete(&likeRow{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete pair likes: %w", err)
		}
		if snap.Match != nil {
			if err := deleteMatchTx(tx, *snap.Match); err != nil {
				return err
			}
		}
		block := newBlockRow(commit.Block)
		if err := tx.Create(&block).Error; err != nil {
			return fmt.Errorf("failed to create block: %w", err)
		}
		return nil
	})
}

// --- matches ---

func (s *PostgresStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	if !isRowID(matchID) {
		return nil, fmt.Errorf("%w: match %s", models.ErrNotFound, matchID)
	}
	var row matchRow
	err := s.db.WithContext(ctx).Where("id = ?", matchID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: match %s", models.ErrNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, mapPgError(err))
	}
	m := row.model()
	return &m, nil
}

func (s *PostgresStore) ListMatchesFor(ctx context.Context, userID string) ([]models.Match, error) {
	var rows []matchRow
	if err := s.db.WithContext(ctx).Where("user_a = ? OR user_b = ?", userID, userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	matches := make([]models.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, row.model())
	}
	return matches, nil
}

func (s *PostgresStore) DeleteMatch(ctx context.Context, match models.Match) error {
	return s.inPairTx(ctx, match.UserA, match.UserB, func(tx *gorm.DB) error {
		return deleteMatchTx(tx, match)
	})
}

func deleteMatchTx(tx *gorm.DB, match models.Match) error {
	if err := tx.Where("match_id = ?", match.ID).Delete(&messageRow{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages of match %s: %w", match.ID, err)
	}
	res := tx.Where("id = ?", match.ID).Delete(&matchRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete match %s: %w", match.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
	}
	return nil
}

// --- blocks ---

func (s *PostgresStore) GetBlock(ctx context.Context, blockID string) (*models.Block, error) {
	if !isRowID(blockID) {
		return nil, fmt.Errorf("%w: block %s", models.ErrNotFound, blockID)
	}
	var row blockRow
	err := s.db.WithContext(ctx).Where("id = ?", blockID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: block %s", models.ErrNotFound, blockID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load block %s: %w", blockID, mapPgError(err))
	}
	b := row.model()
	return &b, nil
}

func (s *PostgresStore) ListBlocksBy(ctx context.Context, blocker string) ([]models.Block, error) {
	return s.findBlocks(ctx, "blocker = ?", blocker)
}

func (s *PostgresStore) ListBlocksAgainst(ctx context.Context, blocked string) ([]models.Block, error) {
	return s.findBlocks(ctx, "blocked = ?", blocked)
}

func (s *PostgresStore) findBlocks(ctx context.Context, where string, args ...interface{}) ([]models.Block, error) {
	var rows []blockRow
	if err := s.db.WithContext(ctx).Where(where, args...).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	blocks := make([]models.Block, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, row.model())
	}
	return blocks, nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, block models.Block) error {
	res := s.db.WithContext(ctx).Where("id = ?", block.ID).Delete(&blockRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete block %s: %w", block.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: block %s", models.ErrNotFound, block.ID)
	}
	return nil
}

// --- messages ---

func (s *PostgresStore) AppendMessage(ctx context.Context, match models.Match, msg models.Message) error {
	if !isRowID(match.ID) {
		return fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
	}
	return s.inPairTx(ctx, match.UserA, match.UserB, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&matchRow{}).Where("id = ?", match.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check match %s: %w", match.ID, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: match %s", models.ErrNotFound, match.ID)
		}

		err := tx.Model(&blockRow{}).
			Where("(blocker = ? AND blocked = ?) OR (blocker = ? AND blocked = ?)",
				match.UserA, match.UserB, match.UserB, match.UserA).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check blocks for match %s: %w", match.ID, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: participants of match %s", models.ErrBlocked, match.ID)
		}

		row := newMessageRow(msg)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	if !isRowID(matchID) {
		return []models.Message{}, nil
	}
	var rows []messageRow
	err := s.db.WithContext(ctx).Where("match_id = ?", matchID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", mapPgError(err))
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.model())
	}
	return msgs, nil
}

func (s *PostgresStore) MarkMessagesRead(ctx context.Context, matchID, reader string) (int, error) {
	if !isRowID(matchID) {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("match_id = ? AND sender <> ? AND is_read = ?", matchID, reader, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// isRowID reports whether id can be compared against a uuid column. Anything
// else would fail in PostgreSQL with invalid_text_representation.
func isRowID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// mapPgError turns constraint and serialization failures into ErrConflict and
// a malformed id literal into ErrNotFound.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.Message)
		case pgInvalidTextRepr:
			return fmt.Errorf("%w: %s", models.ErrNotFound, pgErr.Message)
		}
	}
	return err
}
