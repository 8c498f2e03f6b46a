package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

const (
	messagesCollection        = "messages"
	privateMessagesCollection = "private_messages"
	identitiesCollection      = "identities"
	socketsCollection         = "sockets"
)

// DefaultOpTimeout bounds every driver call when the caller did not set one.
const DefaultOpTimeout = 5 * time.Second

type messageDoc struct {
	ID        string    `bson:"_id"`
	Room      string    `bson:"room"`
	Sender    string    `bson:"sender"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type privateMessageDoc struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Receiver  string    `bson:"receiver"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type identityDoc struct {
	OwnedUsername string    `bson:"owned_username"`
	CurrentName   string    `bson:"current_name"`
	PreviousName  string    `bson:"previous_name"`
	Online        bool      `bson:"online"`
	InPrivate     bool      `bson:"in_private"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type socketDoc struct {
	ID        string    `bson:"_id"`
	Socket    string    `bson:"socket"`
	Username  string    `bson:"username"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore implements store.Store on MongoDB.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
}

// New connects to MongoDB, verifies the connection and ensures indexes.
func New(ctx context.Context, uri, database string, opTimeout time.Duration) (*MongoStore, error) {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(opTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client:    client,
		db:        client.Database(database),
		opTimeout: opTimeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}
	indexes := map[string][]mongo.IndexModel{
		messagesCollection: {
			createdAt,
			{Keys: bson.D{{Key: "room", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		privateMessagesCollection: {
			createdAt,
			{Keys: bson.D{{Key: "sender", Value: 1}}},
		},
		identitiesCollection: {
			createdAt,
			{Keys: bson.D{{Key: "owned_username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		socketsCollection: {
			createdAt,
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Tests use it to clean up.
func (s *MongoStore) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ==== MessageStore implementation ====

// InsertMessage persists a room message.
func (s *MongoStore) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := messageDoc{
		ID:        msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Message:   msg.Body,
		CreatedAt: msg.CreatedAt.UTC().Truncate(time.Millisecond),
		UpdatedAt: now(),
	}
	if doc.ID == "" {
		doc.ID = utils.NewRecordID()
	}
	if msg.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	coll := s.db.Collection(messagesCollection)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	var stored messageDoc
	if err := coll.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&stored); err != nil {
		return nil, notFound(err, "message "+doc.ID)
	}
	return stored.toStore(), nil
}

// FindMessages returns up to limit messages, newest first.
func (s *MongoStore) FindMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}

	filter := bson.M{}
	if room != "" {
		filter["room"] = room
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(messagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].toStore())
	}
	return messages, nil
}

// ==== PrivateMessageStore implementation ====

// InsertPrivateMessage persists a private message.
func (s *MongoStore) InsertPrivateMessage(ctx context.Context, msg *store.PrivateMessage) (*store.PrivateMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := privateMessageDoc{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Message:   msg.Body,
		CreatedAt: msg.CreatedAt.UTC().Truncate(time.Millisecond),
		UpdatedAt: now(),
	}
	if doc.ID == "" {
		doc.ID = utils.NewRecordID()
	}
	if msg.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	coll := s.db.Collection(privateMessagesCollection)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}

	var stored privateMessageDoc
	if err := coll.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&stored); err != nil {
		return nil, notFound(err, "private message "+doc.ID)
	}
	return &store.PrivateMessage{
		ID:        stored.ID,
		Sender:    stored.Sender,
		Receiver:  stored.Receiver,
		Body:      stored.Message,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}, nil
}

// ==== IdentityStore implementation ====

// UpsertIdentity binds ownedUsername to generatedName with one conditional
// update-or-insert. The pipeline reads the old current_name before overwriting it.
func (s *MongoStore) UpsertIdentity(ctx context.Context, ownedUsername, generatedName string) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ts := now()
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "previous_name", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$current_name", ""}}}},
			{Key: "current_name", Value: generatedName},
			{Key: "online", Value: true},
			{Key: "in_private", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$in_private", false}}}},
			{Key: "created_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$created_at", ts}}}},
			{Key: "updated_at", Value: ts},
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	coll := s.db.Collection(identitiesCollection)
	var doc identityDoc
	err := coll.FindOneAndUpdate(ctx, bson.M{"owned_username": ownedUsername}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert inserted first; the retry takes the update path.
		err = coll.FindOneAndUpdate(ctx, bson.M{"owned_username": ownedUsername}, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return doc.toStore(), nil
}

// FindIdentity retrieves an identity by owned username.
func (s *MongoStore) FindIdentity(ctx context.Context, ownedUsername string) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc identityDoc
	if err := s.db.Collection(identitiesCollection).FindOne(ctx, bson.M{"owned_username": ownedUsername}).Decode(&doc); err != nil {
		return nil, notFound(err, "identity "+ownedUsername)
	}
	return doc.toStore(), nil
}

// MarkIdentityOffline clears the online flag.
func (s *MongoStore) MarkIdentityOffline(ctx context.Context, ownedUsername string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.Collection(identitiesCollection).UpdateOne(ctx,
		bson.M{"owned_username": ownedUsername},
		bson.M{"$set": bson.M{"online": false, "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("mark identity offline: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("identity %q: %w", ownedUsername, store.ErrNotFound)
	}
	return nil
}

// SetInPrivate toggles the private-window flag.
func (s *MongoStore) SetInPrivate(ctx context.Context, ownedUsername string, inPrivate bool) (*store.Identity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc identityDoc
	err := s.db.Collection(identitiesCollection).FindOneAndUpdate(ctx,
		bson.M{"owned_username": ownedUsername},
		bson.M{"$set": bson.M{"in_private": inPrivate, "updated_at": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, notFound(err, "identity "+ownedUsername)
	}
	return doc.toStore(), nil
}

// ==== SocketStore implementation ====

// InsertSocket records the display name handed to a connection.
func (s *MongoStore) InsertSocket(ctx context.Context, generatedName, socketID string) (*store.Socket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ts := now()
	doc := socketDoc{
		ID:        utils.NewRecordID(),
		Socket:    socketID,
		Username:  generatedName,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := s.db.Collection(socketsCollection).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert socket: %w", err)
	}
	return doc.toStore(), nil
}

// DeleteSocket removes the binding for a display name.
func (s *MongoStore) DeleteSocket(ctx context.Context, generatedName string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Collection(socketsCollection).DeleteMany(ctx, bson.M{"username": generatedName}); err != nil {
		return fmt.Errorf("delete socket: %w", err)
	}
	return nil
}

// ListSockets returns a page of socket bindings.
func (s *MongoStore) ListSockets(ctx context.Context, limit, page int) (store.Page[*store.Socket], error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	coll := s.db.Collection(socketsCollection)
	total, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("count sockets: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(store.Offset(limit, page))).
		SetLimit(int64(limit))
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("find sockets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []socketDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("decode sockets: %w", err)
	}

	sockets := make([]*store.Socket, 0, len(docs))
	for i := range docs {
		sockets = append(sockets, docs[i].toStore())
	}
	return store.NewPage(sockets, limit, page, int(total)), nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", what, err)
}

func (d *messageDoc) toStore() *store.Message {
	return &store.Message{
		ID:        d.ID,
		Room:      d.Room,
		Sender:    d.Sender,
		Body:      d.Message,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d *identityDoc) toStore() *store.Identity {
	return &store.Identity{
		OwnedUsername: d.OwnedUsername,
		CurrentName:   d.CurrentName,
		PreviousName:  d.PreviousName,
		Online:        d.Online,
		InPrivate:     d.InPrivate,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d *socketDoc) toStore() *store.Socket {
	return &store.Socket{
		ID:        d.ID,
		SocketID:  d.Socket,
		Username:  d.Username,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
