package metadatastore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeStore - реализация Store в памяти для тестов Multipart Coordinator и
// Listing Token Translator без поднятия настоящей MongoDB. Поведенчески повторяет
// атомарность MongoStore.UpdateMultipartStatuses (не воскрешает терминальные записи).
type FakeStore struct {
	mu       sync.Mutex
	sessions map[string]*MultipartSession
	tokens   map[string]*ListToken
	nextID   int
}

// NewFakeStore создает пустой FakeStore
func NewFakeStore() *FakeStore {
	return &FakeStore{
		sessions: make(map[string]*MultipartSession),
		tokens:   make(map[string]*ListToken),
	}
}

func (f *FakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *FakeStore) CreateMultipartSession(bucket, key string, uploadIDs []RemoteUploadID) (*MultipartSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session := &MultipartSession{
		ID:        f.genID("mpu"),
		Bucket:    bucket,
		Key:       key,
		UploadIDs: append([]RemoteUploadID(nil), uploadIDs...),
		CreatedAt: time.Now(),
	}
	f.sessions[session.ID] = session

	out := *session
	return &out, nil
}

func (f *FakeStore) GetMultipartSession(id string) (*MultipartSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *session
	return &out, nil
}

func (f *FakeStore) UpdateMultipartStatuses(id string, uploadIDs []RemoteUploadID) (*MultipartSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if session.IsTerminal() {
		return nil, ErrNotFound
	}
	session.UploadIDs = append([]RemoteUploadID(nil), uploadIDs...)

	out := *session
	return &out, nil
}

func (f *FakeStore) MarkMultipartComplete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.IsTerminal() {
		return ErrNotFound
	}
	now := time.Now()
	session.CompletedAt = &now
	return nil
}

func (f *FakeStore) MarkMultipartAborted(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.IsTerminal() {
		return nil
	}
	now := time.Now()
	session.AbortedAt = &now
	return nil
}

func (f *FakeStore) InsertListToken(startAfter string) (*ListToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token := &ListToken{
		ID:         f.genID("tok"),
		StartAfter: startAfter,
		CreatedAt:  time.Now(),
	}
	f.tokens[token.ID] = token

	out := *token
	return &out, nil
}

func (f *FakeStore) ConsumeListToken(id string) (*ListToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	before := *token
	now := time.Now()
	token.ConsumedAt = &now
	return &before, nil
}

func (f *FakeStore) Close(ctx context.Context) error {
	return nil
}
