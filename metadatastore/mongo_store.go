package metadatastore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"s3proxy/logger"
)

// MongoStore - реализация Store поверх go.mongodb.org/mongo-driver.
// Object id-ы рендерятся как hex-строки для client-visible upload_id/continuation_token.
type MongoStore struct {
	client      *mongo.Client
	multipart   *mongo.Collection
	listTokens  *mongo.Collection
	config      Config
}

// Config описывает подключение к метаданным и политики TTL.
type Config struct {
	URI                   string        `yaml:"uri"`
	Database              string        `yaml:"database"`
	MultipartCollection   string        `yaml:"multipart_collection"`
	ListTokenCollection   string        `yaml:"list_token_collection"`
	MultipartTTL          time.Duration `yaml:"multipart_ttl"`
	ListTokenTTL          time.Duration `yaml:"list_token_ttl"`
	JanitorInterval       time.Duration `yaml:"janitor_interval"`
}

// DefaultConfig возвращает конфигурацию metadata store по умолчанию
func DefaultConfig() Config {
	return Config{
		URI:                 "mongodb://localhost:27017",
		Database:            "s3proxy",
		MultipartCollection: "multipart_upload_ids",
		ListTokenCollection: "list_object_tokens",
		MultipartTTL:        24 * time.Hour,
		ListTokenTTL:        24 * time.Hour,
		JanitorInterval:     1 * time.Hour,
	}
}

// Validate проверяет корректность конфигурации metadata store
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.New("metadata_store.uri cannot be empty")
	}
	if c.Database == "" {
		return errors.New("metadata_store.database cannot be empty")
	}
	if c.MultipartCollection == "" || c.ListTokenCollection == "" {
		return errors.New("metadata_store collection names cannot be empty")
	}
	if c.MultipartTTL <= 0 || c.ListTokenTTL <= 0 {
		return errors.New("metadata_store TTLs must be positive")
	}
	return nil
}

// NewMongoStore подключается к MongoDB и возвращает готовый Store
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	store := &MongoStore{
		client:     client,
		multipart:  db.Collection(cfg.MultipartCollection),
		listTokens: db.Collection(cfg.ListTokenCollection),
		config:     cfg,
	}

	logger.Info("Connected to metadata store at %s (db: %s)", cfg.URI, cfg.Database)
	return store, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateMultipartSession вставляет новую запись multipart-сессии
func (s *MongoStore) CreateMultipartSession(bucket, key string, uploadIDs []RemoteUploadID) (*MultipartSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session := &MultipartSession{
		ID:        primitive.NewObjectID().Hex(),
		Bucket:    bucket,
		Key:       key,
		UploadIDs: uploadIDs,
		CreatedAt: time.Now(),
	}

	_, err := s.multipart.InsertOne(ctx, session)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetMultipartSession ищет сессию по client-visible upload_id
func (s *MongoStore) GetMultipartSession(id string) (*MultipartSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var session MultipartSession
	err := s.multipart.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateMultipartStatuses пишет обновленный upload_ids атомарным find_and_update,
// отфильтрованным по "ещё не терминальная".
func (s *MongoStore) UpdateMultipartStatuses(id string, uploadIDs []RemoteUploadID) (*MultipartSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "completed_at": nil, "aborted_at": nil}
	update := bson.M{"$set": bson.M{"upload_ids": uploadIDs}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session MultipartSession
	err := s.multipart.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// MarkMultipartComplete устанавливает completed_at
func (s *MongoStore) MarkMultipartComplete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	filter := bson.M{"_id": id, "completed_at": nil, "aborted_at": nil}
	update := bson.M{"$set": bson.M{"completed_at": now}}

	res, err := s.multipart.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMultipartAborted устанавливает aborted_at. Идемпотентен по отношению к
// записям, уже помеченным aborted: второй вызов не считается ошибкой.
func (s *MongoStore) MarkMultipartAborted(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	filter := bson.M{"_id": id, "completed_at": nil, "aborted_at": nil}
	update := bson.M{"$set": bson.M{"aborted_at": now}}

	res, err := s.multipart.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// уже терминальная - успех, т.к. Abort идемпотентен по контракту;
		// не найдена - возвращаем ErrNotFound из GetMultipartSession
		if _, err := s.GetMultipartSession(id); err != nil {
			return err
		}
	}
	return nil
}

// InsertListToken вставляет новую запись ListObjectTokens
func (s *MongoStore) InsertListToken(startAfter string) (*ListToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token := &ListToken{
		ID:         primitive.NewObjectID().Hex(),
		StartAfter: startAfter,
		CreatedAt:  time.Now(),
	}

	_, err := s.listTokens.InsertOne(ctx, token)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ConsumeListToken ищет токен по id и отмечает его consumed_at.
// Повторное потребление не запрещено (идемпотентность не гарантируется, только логируется).
func (s *MongoStore) ConsumeListToken(id string) (*ListToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{"consumed_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var token ListToken
	err := s.listTokens.FindOneAndUpdate(ctx, filter, update, opts).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}
