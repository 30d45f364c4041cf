package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	logx "mdbot/pkg/logx"
)

const (
	colUsers    = "users"
	colGroups   = "groups"
	colLinks    = "device_links"
	colSessions = "sessions"
	colSettings = "settings"
)

type mongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
	log       logx.Logger
}

func connectMongo(ctx context.Context, cfg Config, log logx.Logger) (*mongoStore, error) {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	name := cfg.Database
	if name == "" {
		name = DatabaseFromURI(cfg.URI)
	}

	s := &mongoStore{
		client:    client,
		db:        client.Database(name),
		opTimeout: opTimeout,
		log:       log,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		// The unique index is the /connect race arbiter; without it linking
		// still works for the common case, so keep going.
		log.Warn("index setup failed", logx.Err(err))
	}
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(colLinks).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colSessions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	return err
}

func (s *mongoStore) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *mongoStore) UpsertUser(ctx context.Context, u User) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.db.Collection(colUsers).UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{"$set": bson.M{
			"username":   u.Username,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"premium":    u.Premium,
			"joined":     u.Joined,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) TouchGroup(ctx context.Context, g Group) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.db.Collection(colGroups).UpdateOne(ctx,
		bson.M{"_id": g.ID},
		bson.M{"$set": bson.M{
			"title":     g.Title,
			"type":      g.Type,
			"public":    g.Public,
			"last_seen": g.LastSeen,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) UserIDs(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	cur, err := s.db.Collection(colUsers).Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *mongoStore) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, colUsers, bson.D{})
}

func (s *mongoStore) CountGroups(ctx context.Context) (int64, error) {
	return s.count(ctx, colGroups, bson.D{})
}

func (s *mongoStore) CountSessions(ctx context.Context) (int64, error) {
	return s.count(ctx, colSessions, bson.D{})
}

func (s *mongoStore) count(ctx context.Context, col string, filter any) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return s.db.Collection(col).CountDocuments(ctx, filter)
}

func (s *mongoStore) Link(ctx context.Context, userID int64) (DeviceLink, bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	links := s.db.Collection(colLinks)

	var existing DeviceLink
	err := links.FindOne(ctx, bson.M{"user_id": userID}).Decode(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return DeviceLink{}, false, err
	}

	link := DeviceLink{UserID: userID, Code: newLinkCode(), LinkedAt: time.Now().UTC()}
	if _, err := links.InsertOne(ctx, link); err != nil {
		// Unique index on user_id arbitrates concurrent first links: read
		// back the winner instead of failing.
		if mongo.IsDuplicateKeyError(err) {
			var won DeviceLink
			if err2 := links.FindOne(ctx, bson.M{"user_id": userID}).Decode(&won); err2 == nil {
				return won, false, nil
			}
		}
		return DeviceLink{}, false, err
	}
	return link, true, nil
}

func (s *mongoStore) CreateSession(ctx context.Context, userID int64, maxSessions int) (Session, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	sessions := s.db.Collection(colSessions)

	if maxSessions > 0 {
		n, err := sessions.CountDocuments(ctx, bson.M{"user_id": userID})
		if err != nil {
			return Session{}, err
		}
		if n >= int64(maxSessions) {
			return Session{}, ErrSessionLimit
		}
	}

	sess := Session{ID: newSessionID(), UserID: userID, StartedAt: time.Now().UTC()}
	if _, err := sessions.InsertOne(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *mongoStore) SessionsFor(ctx context.Context, userID int64) (int64, error) {
	return s.count(ctx, colSessions, bson.M{"user_id": userID})
}

func (s *mongoStore) GetSettings(ctx context.Context) (Settings, bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var out Settings
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": SettingsID}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	return out, true, nil
}

func (s *mongoStore) PutSettings(ctx context.Context, set Settings) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	// $set must not touch _id; spell the fields out.
	_, err := s.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": SettingsID},
		bson.M{"$set": bson.M{
			"autoreact_enabled": set.AutoreactEnabled,
			"autoreact_emojis":  set.AutoreactEmojis,
			"welcome_enabled":   set.WelcomeEnabled,
			"antispam_enabled":  set.AntispamEnabled,
			"max_warnings":      set.MaxWarnings,
			"max_sessions":      set.MaxSessions,
			"broadcast_enabled": set.BroadcastEnabled,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) SetSetting(ctx context.Context, field string, value any) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": SettingsID},
		bson.M{"$set": bson.M{field: value}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
