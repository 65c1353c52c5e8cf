// Package metadatastore реализует внешнее хранилище состояния multipart-сессий
// и токенов листинга поверх MongoDB. Ни один proxy-процесс
// не кэширует эти записи между запросами - каждый шаг перечитывает, действует и пишет,
// что и позволяет нескольким репликам proxy безопасно делить multipart-сессии.
package metadatastore

import (
	"context"
	"time"
)

// PartStatus - статус одного remote внутри multipart-сессии.
type PartStatus string

const (
	StatusOpen      PartStatus = "Open"
	StatusCancelled PartStatus = "Cancelled"
)

// RemoteUploadID - один элемент ordered set в MultipartSession.
type RemoteUploadID struct {
	RemoteName string     `bson:"remote_name"`
	UploadID   string     `bson:"upload_id"`
	Status     PartStatus `bson:"status"`
}

// MultipartSession - персистентная запись коллекции multipart_upload_ids.
// ID используется как client-visible upload_id.
type MultipartSession struct {
	ID          string           `bson:"_id"`
	Bucket      string           `bson:"bucket"`
	Key         string           `bson:"key"`
	UploadIDs   []RemoteUploadID `bson:"upload_ids"`
	CreatedAt   time.Time        `bson:"created_at"`
	CompletedAt *time.Time       `bson:"completed_at,omitempty"`
	AbortedAt   *time.Time       `bson:"aborted_at,omitempty"`
}

// IsTerminal возвращает true, если сессия уже завершена (Completed или Aborted)
// и больше не принимает UploadPart/Complete/Abort.
func (s *MultipartSession) IsTerminal() bool {
	return s.CompletedAt != nil || s.AbortedAt != nil
}

// ListToken - персистентная запись коллекции list_object_tokens.
type ListToken struct {
	ID         string     `bson:"_id"`
	StartAfter string     `bson:"start_after"`
	CreatedAt  time.Time  `bson:"created_at"`
	ConsumedAt *time.Time `bson:"consumed_at,omitempty"`
}

// ErrNotFound - запись с таким id не найдена.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "metadatastore: record not found" }

// Store - контракт документного хранилища, которым пользуются Multipart
// Coordinator и Listing Token Translator. MongoStore - единственная
// продуктовая реализация; интерфейс существует, чтобы оба координатора можно
// было протестировать с хэнд-роллед fake-реализацией, без поднятия MongoDB.
type Store interface {
	CreateMultipartSession(bucket, key string, uploadIDs []RemoteUploadID) (*MultipartSession, error)
	GetMultipartSession(id string) (*MultipartSession, error)
	// UpdateMultipartStatuses атомарно записывает обновленный набор upload_ids,
	// но никогда не воскрешает запись, уже помеченную Cancelled - устройство
	// этой гарантии описано в MongoStore.UpdateMultipartStatuses.
	UpdateMultipartStatuses(id string, uploadIDs []RemoteUploadID) (*MultipartSession, error)
	MarkMultipartComplete(id string) error
	MarkMultipartAborted(id string) error

	InsertListToken(startAfter string) (*ListToken, error)
	ConsumeListToken(id string) (*ListToken, error)

	Close(ctx context.Context) error
}
