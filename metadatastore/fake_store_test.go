package metadatastore

import (
	"errors"
	"testing"
)

func TestCreateAndGetMultipartSession(t *testing.T) {
	store := NewFakeStore()

	entries := []RemoteUploadID{
		{RemoteName: "r1", UploadID: "u1", Status: StatusOpen},
		{RemoteName: "r2", UploadID: "u2", Status: StatusOpen},
	}

	session, err := store.CreateMultipartSession("bucket", "key/object.bin", entries)
	if err != nil {
		t.Fatalf("CreateMultipartSession failed: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a non-empty session ID")
	}
	if session.IsTerminal() {
		t.Error("freshly created session should not be terminal")
	}

	got, err := store.GetMultipartSession(session.ID)
	if err != nil {
		t.Fatalf("GetMultipartSession failed: %v", err)
	}
	if got.Bucket != "bucket" || got.Key != "key/object.bin" {
		t.Errorf("unexpected session bucket/key: %+v", got)
	}
	if len(got.UploadIDs) != 2 {
		t.Fatalf("expected 2 upload ids, got %d", len(got.UploadIDs))
	}
}

func TestGetMultipartSessionNotFound(t *testing.T) {
	store := NewFakeStore()

	_, err := store.GetMultipartSession("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMultipartStatusesRejectsTerminalSession(t *testing.T) {
	store := NewFakeStore()
	session, _ := store.CreateMultipartSession("b", "k", []RemoteUploadID{
		{RemoteName: "r1", UploadID: "u1", Status: StatusOpen},
	})

	if err := store.MarkMultipartComplete(session.ID); err != nil {
		t.Fatalf("MarkMultipartComplete failed: %v", err)
	}

	_, err := store.UpdateMultipartStatuses(session.ID, []RemoteUploadID{
		{RemoteName: "r1", UploadID: "u1", Status: StatusCancelled},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected updates to a completed session to be rejected with ErrNotFound, got %v", err)
	}
}

func TestMarkMultipartCompleteThenAbortedNoOp(t *testing.T) {
	store := NewFakeStore()
	session, _ := store.CreateMultipartSession("b", "k", []RemoteUploadID{
		{RemoteName: "r1", UploadID: "u1", Status: StatusOpen},
	})

	if err := store.MarkMultipartComplete(session.ID); err != nil {
		t.Fatalf("MarkMultipartComplete failed: %v", err)
	}

	got, err := store.GetMultipartSession(session.ID)
	if err != nil {
		t.Fatalf("GetMultipartSession failed: %v", err)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	if !got.IsTerminal() {
		t.Error("expected session to be terminal after completion")
	}

	// Повторный Abort на уже Completed сессии не должен возвращать ошибку -
	// идемпотентность на терминальных записях
	if err := store.MarkMultipartAborted(session.ID); err != nil {
		t.Errorf("expected no-op success aborting an already-terminal session, got %v", err)
	}

	got, _ = store.GetMultipartSession(session.ID)
	if got.AbortedAt != nil {
		t.Error("completed session should not also be marked aborted by a later no-op abort")
	}
}

func TestMarkMultipartAborted(t *testing.T) {
	store := NewFakeStore()
	session, _ := store.CreateMultipartSession("b", "k", []RemoteUploadID{
		{RemoteName: "r1", UploadID: "u1", Status: StatusOpen},
	})

	if err := store.MarkMultipartAborted(session.ID); err != nil {
		t.Fatalf("MarkMultipartAborted failed: %v", err)
	}

	got, _ := store.GetMultipartSession(session.ID)
	if got.AbortedAt == nil {
		t.Fatal("expected AbortedAt to be set")
	}
	if !got.IsTerminal() {
		t.Error("expected session to be terminal after abort")
	}
}

func TestInsertAndConsumeListToken(t *testing.T) {
	store := NewFakeStore()

	token, err := store.InsertListToken("some/prefix/marker")
	if err != nil {
		t.Fatalf("InsertListToken failed: %v", err)
	}
	if token.ID == "" {
		t.Fatal("expected a non-empty token ID")
	}
	if token.ConsumedAt != nil {
		t.Error("freshly inserted token should not be consumed")
	}

	consumed, err := store.ConsumeListToken(token.ID)
	if err != nil {
		t.Fatalf("ConsumeListToken failed: %v", err)
	}
	if consumed.StartAfter != "some/prefix/marker" {
		t.Errorf("expected StartAfter 'some/prefix/marker', got %q", consumed.StartAfter)
	}
}

func TestConsumeListTokenNotFound(t *testing.T) {
	store := NewFakeStore()

	_, err := store.ConsumeListToken("missing-token")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
