package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mongosession/converter"
	"mongosession/model"
	"mongosession/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// SessionCache is the read-through cache consulted before the collection.
type SessionCache interface {
	SetSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type SessionRepoConfig struct {
	MaxInactiveInterval time.Duration
	OperationTimeout    time.Duration
}

type SessionRepo struct {
	MongoCollection *mongo.Collection
	Converter       *converter.SessionConverter
	Cache           SessionCache
	Clock           model.Clock

	cfg    SessionRepoConfig
	logger *zap.Logger
}

// GetSessionRepo returns a repository over coll. cache may be nil.
func GetSessionRepo(coll *mongo.Collection, cfg SessionRepoConfig, conv *converter.SessionConverter, cache SessionCache, logger *zap.Logger) *SessionRepo {
	if conv == nil {
		conv = converter.NewSessionConverter(nil)
	}
	if cfg.MaxInactiveInterval == 0 {
		cfg.MaxInactiveInterval = model.DefaultMaxInactiveInterval
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &SessionRepo{
		MongoCollection: coll,
		Converter:       conv,
		Cache:           cache,
		Clock:           model.RealClock{},
		cfg:             cfg,
		logger:          utils.LoggerOrNop(logger),
	}
}

func (r *SessionRepo) collectionName() string {
	return r.MongoCollection.Name()
}

// CreateSession returns a new session with the configured interval. It is not
// stored until Save is called.
func (r *SessionRepo) CreateSession() *model.Session {
	session := model.NewSession(r.Clock)
	session.SetMaxInactiveInterval(r.cfg.MaxInactiveInterval)
	return session
}

// Save inserts or replaces the stored document of session.
func (r *SessionRepo) Save(ctx context.Context, session *model.Session) error {
	timer := utils.TrackDBOperation("replace", r.collectionName())
	defer timer.ObserveDuration()

	doc, err := r.Converter.ToDocument(session)
	utils.TrackConversion("to_document", err)
	if err != nil {
		utils.TrackError("repository", "session_conversion_failed")
		return fmt.Errorf("failed to convert session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	_, err = r.MongoCollection.ReplaceOne(ctx,
		bson.M{converter.IDField: session.ID()},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		utils.TrackError("repository", "session_save_failed")
		return fmt.Errorf("failed to save session in database: %w", err)
	}

	if r.Cache != nil {
		if err := r.Cache.SetSession(ctx, session); err != nil {
			utils.TrackError("cache", "session_cache_set_failed")
			r.logger.Warn("failed to cache session", zap.String("session_id", session.ID()), zap.Error(err))
		}
	}

	return nil
}

// GetSession returns the session stored under id. A missing or expired session
// returns nil, nil; expired sessions are deleted on the way.
func (r *SessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	if r.Cache != nil {
		session, err := r.Cache.GetSession(ctx, id)
		if err != nil {
			r.logger.Warn("session cache lookup failed", zap.String("session_id", id), zap.Error(err))
		} else if session != nil {
			return session, nil
		}
	}

	timer := utils.TrackDBOperation("find", r.collectionName())
	defer timer.ObserveDuration()

	findCtx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	raw, err := r.MongoCollection.FindOne(findCtx, bson.M{converter.IDField: id}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		utils.TrackError("repository", "session_fetch_failed")
		return nil, fmt.Errorf("failed to fetch session from database: %w", err)
	}

	session, err := r.Converter.FromRaw(raw)
	utils.TrackConversion("from_document", err)
	if err != nil {
		utils.TrackError("repository", "session_conversion_failed")
		return nil, fmt.Errorf("failed to convert session %s: %w", id, err)
	}

	if session.IsExpired(r.Clock.Now()) {
		if err := r.DeleteSession(ctx, id); err != nil {
			r.logger.Warn("failed to delete expired session", zap.String("session_id", id), zap.Error(err))
		}
		return nil, nil
	}

	if r.Cache != nil {
		if err := r.Cache.SetSession(ctx, session); err != nil {
			r.logger.Warn("failed to cache session", zap.String("session_id", id), zap.Error(err))
		}
	}

	return session, nil
}

// DeleteSession removes the session stored under id. Deleting an unknown
// session is not an error.
func (r *SessionRepo) DeleteSession(ctx context.Context, id string) error {
	timer := utils.TrackDBOperation("delete", r.collectionName())
	defer timer.ObserveDuration()

	if id == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	if _, err := r.MongoCollection.DeleteOne(ctx, bson.M{converter.IDField: id}); err != nil {
		utils.TrackError("repository", "session_deletion_failed")
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	if r.Cache != nil {
		if err := r.Cache.DeleteSession(ctx, id); err != nil {
			utils.TrackError("cache", "session_cache_delete_failed")
			r.logger.Warn("failed to delete session from cache", zap.String("session_id", id), zap.Error(err))
		}
	}

	return nil
}

// FindByIndexNameAndIndexValue returns the live sessions whose attribute
// indexName holds indexValue, keyed by session id.
func (r *SessionRepo) FindByIndexNameAndIndexValue(ctx context.Context, indexName string, indexValue any) (map[string]*model.Session, error) {
	query, err := r.Converter.QueryForIndex(indexName, indexValue)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, query)
}

// FindByPrincipalNameAndIndex is FindByIndexNameAndIndexValue restricted to the
// sessions of principal.
func (r *SessionRepo) FindByPrincipalNameAndIndex(ctx context.Context, principal, indexName string, indexValue any) (map[string]*model.Session, error) {
	if principal == "" {
		return nil, fmt.Errorf("principal cannot be empty")
	}
	query, err := r.Converter.QueryForIndex(indexName, indexValue)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"$and": bson.A{
		bson.M{converter.PrincipalField: principal},
		query,
	}})
}

func (r *SessionRepo) find(ctx context.Context, query bson.M) (map[string]*model.Session, error) {
	timer := utils.TrackDBOperation("find", r.collectionName())
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()

	cursor, err := r.MongoCollection.Find(ctx, query)
	if err != nil {
		utils.TrackError("repository", "session_fetch_failed")
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	now := r.Clock.Now()
	sessions := make(map[string]*model.Session)
	for cursor.Next(ctx) {
		session, err := r.Converter.FromRaw(cursor.Current)
		utils.TrackConversion("from_document", err)
		if err != nil {
			return nil, fmt.Errorf("failed to convert session: %w", err)
		}
		if session.IsExpired(now) {
			continue
		}
		sessions[session.ID()] = session
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// FindByPrincipalName returns the live sessions of principal.
func (r *SessionRepo) FindByPrincipalName(ctx context.Context, principal string) (map[string]*model.Session, error) {
	if principal == "" {
		return nil, fmt.Errorf("principal cannot be empty")
	}
	return r.FindByIndexNameAndIndexValue(ctx, model.PrincipalNameIndexName, principal)
}
