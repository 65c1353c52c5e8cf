package metadatastore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"s3proxy/logger"
)

// Janitor удаляет терминальные multipart-сессии и потребленные токены листинга
// старше TTL. Это чистая уборка мусора, не механизм корректности:
// просроченная-но-не-подметенная запись по-прежнему корректно обрабатывается
// фильтрами на liveness в остальном коде.
type Janitor struct {
	store    *MongoStore
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewJanitor создает janitor для переданного MongoStore
func NewJanitor(store *MongoStore) *Janitor {
	return &Janitor{
		store:    store,
		interval: store.config.JanitorInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start запускает фоновую уборку с заданным интервалом
func (j *Janitor) Start() {
	go j.run()
}

// Stop останавливает janitor и ждет завершения текущего прохода
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
}

func (j *Janitor) run() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	multipartCutoff := time.Now().Add(-j.store.config.MultipartTTL)
	res, err := j.store.multipart.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": multipartCutoff},
		"$or": []bson.M{
			{"completed_at": bson.M{"$ne": nil}},
			{"aborted_at": bson.M{"$ne": nil}},
		},
	})
	if err != nil {
		logger.Warn("janitor: failed to sweep multipart_upload_ids: %v", err)
	} else if res.DeletedCount > 0 {
		logger.Info("janitor: removed %d expired terminal multipart sessions", res.DeletedCount)
	}

	tokenCutoff := time.Now().Add(-j.store.config.ListTokenTTL)
	tres, err := j.store.listTokens.DeleteMany(ctx, bson.M{
		"created_at":  bson.M{"$lt": tokenCutoff},
		"consumed_at": bson.M{"$ne": nil},
	})
	if err != nil {
		logger.Warn("janitor: failed to sweep list_object_tokens: %v", err)
	} else if tres.DeletedCount > 0 {
		logger.Info("janitor: removed %d expired consumed list tokens", tres.DeletedCount)
	}
}
