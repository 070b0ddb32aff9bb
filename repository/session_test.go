package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"mongosession/converter"
	"mongosession/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var repoNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// memoryCache is a SessionCache keeping sessions in a map.
type memoryCache struct {
	sessions map[string]*model.Session
}

func newMemoryCache() *memoryCache {
	return &memoryCache{sessions: make(map[string]*model.Session)}
}

func (m *memoryCache) SetSession(_ context.Context, s *model.Session) error {
	m.sessions[s.ID()] = s
	return nil
}

func (m *memoryCache) GetSession(_ context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

func (m *memoryCache) DeleteSession(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func newTestRepo(coll *mongo.Collection, cache SessionCache) *SessionRepo {
	repo := GetSessionRepo(coll, SessionRepoConfig{MaxInactiveInterval: 15 * time.Minute}, nil, cache, nil)
	repo.Clock = model.FixedClock{Fixed: repoNow}
	return repo
}

func toBSOND(t testing.TB, conv *converter.SessionConverter, s *model.Session) bson.D {
	t.Helper()
	doc, err := conv.ToDocument(s)
	if err != nil {
		t.Fatalf("ToDocument() error = %v", err)
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("bson.Marshal() error = %v", err)
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		t.Fatalf("bson.Unmarshal() error = %v", err)
	}
	return d
}

func namespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("CreateSession", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		session := repo.CreateSession()

		if session.MaxInactiveInterval() != 15*time.Minute {
			mt.Errorf("MaxInactiveInterval() = %v, want 15m", session.MaxInactiveInterval())
		}
		if !session.CreationTime().Equal(repoNow) {
			mt.Errorf("CreationTime() = %v, want %v", session.CreationTime(), repoNow)
		}
	})

	mt.Run("Save", func(mt *mtest.T) {
		cache := newMemoryCache()
		repo := newTestRepo(mt.Coll, cache)
		session := repo.CreateSession()
		session.SetAttribute("cart", "my-cart")

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		if err := repo.Save(ctx, session); err != nil {
			mt.Fatalf("Save() error = %v", err)
		}

		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "update" {
			mt.Fatalf("started event = %v, want update", started)
		}
		if _, ok := cache.sessions[session.ID()]; !ok {
			mt.Error("saved session should be cached")
		}
	})

	mt.Run("Save Failure", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "shutting down",
		}))

		if err := repo.Save(ctx, repo.CreateSession()); err == nil {
			mt.Error("Save() should fail when the server rejects the write")
		}
	})

	mt.Run("Save Unconvertible Session", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		session := repo.CreateSession()
		session.SetAttribute("bad", struct{ X int }{X: 1})

		if err := repo.Save(ctx, session); !errors.Is(err, converter.ErrUnregisteredType) {
			mt.Errorf("Save() error = %v, want ErrUnregisteredType", err)
		}
	})

	mt.Run("GetSession", func(mt *mtest.T) {
		cache := newMemoryCache()
		repo := newTestRepo(mt.Coll, cache)
		session := repo.CreateSession()
		session.SetAttribute(model.DeviceInfoAttribute, model.DeviceInfo{Browser: "Firefox", OS: "Linux", Device: "Desktop"})

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, toBSOND(mt, repo.Converter, session)))

		got, err := repo.GetSession(ctx, session.ID())
		if err != nil {
			mt.Fatalf("GetSession() error = %v", err)
		}
		if got == nil || got.ID() != session.ID() {
			mt.Fatalf("GetSession() = %v, want %s", got, session.ID())
		}
		if !got.ExpireAt().Equal(session.ExpireAt()) {
			mt.Errorf("ExpireAt() = %v, want %v", got.ExpireAt(), session.ExpireAt())
		}
		device, _ := got.Attribute(model.DeviceInfoAttribute)
		if device != (model.DeviceInfo{Browser: "Firefox", OS: "Linux", Device: "Desktop"}) {
			mt.Errorf("device = %v", device)
		}
		if _, ok := cache.sessions[session.ID()]; !ok {
			mt.Error("fetched session should be cached")
		}

		// Served from cache: no mock response is queued for a second find.
		again, err := repo.GetSession(ctx, session.ID())
		if err != nil || again == nil {
			mt.Errorf("cached GetSession() = %v, %v", again, err)
		}
	})

	mt.Run("GetSession Not Found", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		got, err := repo.GetSession(ctx, "missing")
		if err != nil || got != nil {
			mt.Errorf("GetSession() = %v, %v, want nil, nil", got, err)
		}
	})

	mt.Run("GetSession Expired", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		expired := model.NewSession(model.FixedClock{Fixed: repoNow.Add(-time.Hour)})

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, toBSOND(mt, repo.Converter, expired)),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		got, err := repo.GetSession(ctx, expired.ID())
		if err != nil || got != nil {
			mt.Errorf("GetSession() = %v, %v, want nil, nil", got, err)
		}

		mt.GetStartedEvent() // find
		deleted := mt.GetStartedEvent()
		if deleted == nil || deleted.CommandName != "delete" {
			mt.Errorf("second command = %v, want delete", deleted)
		}
	})

	mt.Run("GetSession Malformed", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "broken"}, {Key: "created", Value: "yesterday"}}))

		if _, err := repo.GetSession(ctx, "broken"); !errors.Is(err, converter.ErrMalformedDocument) {
			mt.Errorf("GetSession() error = %v, want ErrMalformedDocument", err)
		}
	})

	mt.Run("GetSession Empty ID", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		if _, err := repo.GetSession(ctx, ""); err == nil {
			mt.Error("GetSession(\"\") should fail")
		}
	})

	mt.Run("DeleteSession", func(mt *mtest.T) {
		cache := newMemoryCache()
		repo := newTestRepo(mt.Coll, cache)
		session := repo.CreateSession()
		cache.sessions[session.ID()] = session

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		if err := repo.DeleteSession(ctx, session.ID()); err != nil {
			mt.Fatalf("DeleteSession() error = %v", err)
		}
		if _, ok := cache.sessions[session.ID()]; ok {
			mt.Error("deleted session should be evicted from cache")
		}
	})

	mt.Run("FindByPrincipalName", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		live := repo.CreateSession()
		live.SetAttribute(model.PrincipalNameIndexName, "alice")
		expired := model.NewSession(model.FixedClock{Fixed: repoNow.Add(-time.Hour)})
		expired.SetAttribute(model.PrincipalNameIndexName, "alice")

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			toBSOND(mt, repo.Converter, live),
			toBSOND(mt, repo.Converter, expired),
		))

		sessions, err := repo.FindByPrincipalName(ctx, "alice")
		if err != nil {
			mt.Fatalf("FindByPrincipalName() error = %v", err)
		}
		if len(sessions) != 1 || sessions[live.ID()] == nil {
			mt.Errorf("sessions = %v, want only %s", sessions, live.ID())
		}

		started := mt.GetStartedEvent()
		filter, ok := started.Command.Lookup("filter").DocumentOK()
		if !ok {
			mt.Fatalf("find command has no filter: %v", started.Command)
		}
		if principal, _ := filter.Lookup("principal").StringValueOK(); principal != "alice" {
			mt.Errorf("filter = %v, want principal: alice", filter)
		}
	})

	mt.Run("FindByIndexNameAndIndexValue", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		session := repo.CreateSession()
		session.SetAttribute("cart", "my-cart")

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, toBSOND(mt, repo.Converter, session)))

		sessions, err := repo.FindByIndexNameAndIndexValue(ctx, "cart", "my-cart")
		if err != nil {
			mt.Fatalf("FindByIndexNameAndIndexValue() error = %v", err)
		}
		if len(sessions) != 1 {
			mt.Errorf("sessions = %v, want 1", sessions)
		}

		started := mt.GetStartedEvent()
		filter, _ := started.Command.Lookup("filter").DocumentOK()
		if cart, _ := filter.Lookup("attrs.cart").StringValueOK(); cart != "my-cart" {
			mt.Errorf("filter = %v, want attrs.cart: my-cart", filter)
		}
	})

	mt.Run("FindByIndexNameAndIndexValue Invalid Name", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		if _, err := repo.FindByIndexNameAndIndexValue(ctx, "$where", "x"); !errors.Is(err, converter.ErrInvalidAttributeName) {
			mt.Errorf("error = %v, want ErrInvalidAttributeName", err)
		}
	})

	mt.Run("FindByPrincipalNameAndIndex", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)

		session := repo.CreateSession()
		session.SetAttribute(model.PrincipalNameIndexName, "alice")
		session.SetAttribute("cart", "my-cart")

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, toBSOND(mt, repo.Converter, session)))

		sessions, err := repo.FindByPrincipalNameAndIndex(ctx, "alice", "cart", "my-cart")
		if err != nil {
			mt.Fatalf("FindByPrincipalNameAndIndex() error = %v", err)
		}
		if len(sessions) != 1 {
			mt.Errorf("sessions = %v, want 1", sessions)
		}

		started := mt.GetStartedEvent()
		filter, _ := started.Command.Lookup("filter").DocumentOK()
		clauses, ok := filter.Lookup("$and").ArrayOK()
		if !ok {
			mt.Fatalf("filter = %v, want $and", filter)
		}
		values, _ := clauses.Values()
		if len(values) != 2 {
			mt.Fatalf("$and = %v, want 2 clauses", clauses)
		}
		owner, _ := values[0].Document().Lookup("principal").StringValueOK()
		cart, _ := values[1].Document().Lookup("attrs.cart").StringValueOK()
		if owner != "alice" || cart != "my-cart" {
			mt.Errorf("filter = %v, want principal alice and attrs.cart my-cart", filter)
		}
	})

	mt.Run("FindByPrincipalNameAndIndex Without Principal", func(mt *mtest.T) {
		repo := newTestRepo(mt.Coll, nil)
		if _, err := repo.FindByPrincipalNameAndIndex(ctx, "", "cart", "x"); err == nil {
			mt.Error("Expected an error for an empty principal")
		}
	})

	mt.Run("SetupIndexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := SetupIndexes(ctx, mt.Coll, nil); err != nil {
			mt.Fatalf("SetupIndexes() error = %v", err)
		}

		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "createIndexes" {
			mt.Errorf("started event = %v, want createIndexes", started)
		}
	})
}

func TestSessionIndexes(t *testing.T) {
	indexes := SessionIndexes()
	if len(indexes) != 2 {
		t.Fatalf("SessionIndexes() = %d indexes, want 2", len(indexes))
	}

	ttl := indexes[0]
	if *ttl.Options.Name != ExpireAtIndexName || *ttl.Options.ExpireAfterSeconds != 0 {
		t.Errorf("TTL index options = %+v", ttl.Options)
	}
	if keys := ttl.Keys.(bson.D); keys[0].Key != "expireAt" {
		t.Errorf("TTL index keys = %v", keys)
	}

	principal := indexes[1]
	if *principal.Options.Name != PrincipalIndexName || !*principal.Options.Sparse {
		t.Errorf("principal index options = %+v", principal.Options)
	}
}
