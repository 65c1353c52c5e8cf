package fetch

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/metadatastore"
)

// remoteSpec описывает один remote для тестового Manager.
type remoteSpec struct {
	name        string
	priority    uint
	readRequest bool
	handler     http.HandlerFunc
}

func newTestManager(t *testing.T, specs []remoteSpec) (*backend.Manager, []*httptest.Server) {
	t.Helper()

	var servers []*httptest.Server
	var remotes []backend.RemoteConfig

	for _, spec := range specs {
		endpoint := "http://127.0.0.1:1" // соединение гарантированно отклоняется
		if spec.handler != nil {
			srv := httptest.NewServer(spec.handler)
			servers = append(servers, srv)
			endpoint = srv.URL
		}

		readRequest := spec.readRequest
		remotes = append(remotes, backend.RemoteConfig{
			Name:        spec.name,
			Priority:    spec.priority,
			ReadRequest: &readRequest,
			S3: backend.S3Config{
				Endpoint:  endpoint,
				Region:    "us-east-1",
				Bucket:    "test-bucket",
				AccessKey: "test",
				SecretKey: "test",
			},
		})
	}

	manager, err := backend.NewManager(&backend.Config{
		Manager: backend.DefaultManagerConfig(),
		Remotes: remotes,
	})
	if err != nil {
		t.Fatalf("failed to build manager: %v", err)
	}
	return manager, servers
}

func closeServers(servers []*httptest.Server) {
	for _, s := range servers {
		s.Close()
	}
}

func getObjectHandler(body, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, body)
	}
}

func noSuchKeyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>no such key</Message><RequestId>req-1</RequestId></Error>`)
	}
}

func TestCandidateOrder(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "fallback", priority: 10, readRequest: false},
		{name: "primary-low", priority: 1, readRequest: true},
		{name: "primary-high", priority: 5, readRequest: true},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	ordered := f.candidateOrder()

	if len(ordered) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ordered))
	}

	names := []string{ordered[0].Name, ordered[1].Name, ordered[2].Name}
	expected := []string{"primary-high", "primary-low", "fallback"}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("position %d: expected %s, got %s (full order: %v)", i, expected[i], names[i], names)
		}
	}
}

func TestGetObjectServesFromHighestPriorityReadableRemote(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "low", priority: 1, readRequest: true, handler: getObjectHandler("low-content", "text/plain")},
		{name: "high", priority: 5, readRequest: true, handler: getObjectHandler("high-content", "text/plain")},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.GetObject(context.Background(), &apigw.S3Request{Bucket: "test-bucket", Key: "obj"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "high-content" {
		t.Errorf("expected response from highest-priority remote, got %q", string(body))
	}
}

func TestGetObjectFallsBackWhenPreferredRemoteUnreachable(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "high", priority: 5, readRequest: true}, // no handler -> closed port -> unreachable
		{name: "low", priority: 1, readRequest: true, handler: getObjectHandler("low-content", "text/plain")},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.GetObject(context.Background(), &apigw.S3Request{Bucket: "test-bucket", Key: "obj"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from fallback remote, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "low-content" {
		t.Errorf("expected fallback content, got %q", string(body))
	}
}

func TestGetObjectStopsAtFirstStructuredError(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "high", priority: 5, readRequest: true, handler: noSuchKeyHandler()},
		{name: "low", priority: 1, readRequest: true, handler: getObjectHandler("low-content", "text/plain")},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.GetObject(context.Background(), &apigw.S3Request{Bucket: "test-bucket", Key: "missing"})

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 NoSuchKey from the first candidate without trying the fallback, got %d", resp.StatusCode)
	}
}

func TestGetObjectAllUnreachableReturnsInternalError(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "a", priority: 5, readRequest: true},
		{name: "b", priority: 1, readRequest: true},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.GetObject(context.Background(), &apigw.S3Request{Bucket: "test-bucket", Key: "obj"})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 InternalError when all candidates are unreachable, got %d", resp.StatusCode)
	}
}

func TestGetObjectUnknownBucketIsRejectedLocally(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "a", priority: 1, readRequest: true, handler: getObjectHandler("x", "text/plain")},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.GetObject(context.Background(), &apigw.S3Request{Bucket: "other-bucket", Key: "obj"})

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 NoSuchBucket for an unknown bucket, got %d", resp.StatusCode)
	}
}

func TestHeadBucketNeverHitsRemotes(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "a", priority: 1, readRequest: true}, // closed port, never dialed
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	resp := f.HeadBucket(context.Background(), &apigw.S3Request{Bucket: "test-bucket"})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for the configured virtual bucket regardless of remote health, got %d", resp.StatusCode)
	}
}

func TestListObjectsV2InvalidContinuationToken(t *testing.T) {
	manager, servers := newTestManager(t, []remoteSpec{
		{name: "a", priority: 1, readRequest: true},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, metadatastore.NewFakeStore(), "test-bucket")
	req := &apigw.S3Request{Bucket: "test-bucket", Query: map[string][]string{"continuation-token": {"bogus"}}}
	resp := f.ListObjectsV2(context.Background(), req)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 InvalidToken, got %d", resp.StatusCode)
	}
}

func TestListObjectsV2TranslatesTokenAndIssuesNextToken(t *testing.T) {
	store := metadatastore.NewFakeStore()

	listHandler := func(w http.ResponseWriter, r *http.Request) {
		startAfter := r.URL.Query().Get("start-after")

		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		if startAfter == "page-1-last-key" {
			io.WriteString(w, `<ListBucketResult><Name>test-bucket</Name><KeyCount>1</KeyCount><IsTruncated>false</IsTruncated>`+
				`<Contents><Key>page-2-key</Key><Size>1</Size></Contents></ListBucketResult>`)
			return
		}
		io.WriteString(w, `<ListBucketResult><Name>test-bucket</Name><KeyCount>1</KeyCount><IsTruncated>true</IsTruncated>`+
			`<Contents><Key>page-1-last-key</Key><Size>1</Size></Contents></ListBucketResult>`)
	}

	manager, servers := newTestManager(t, []remoteSpec{
		{name: "a", priority: 1, readRequest: true, handler: listHandler},
	})
	defer closeServers(servers)

	f := NewFetcher(manager, store, "test-bucket")

	first := f.ListObjectsV2(context.Background(), &apigw.S3Request{Bucket: "test-bucket"})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for the first page, got %d", first.StatusCode)
	}
	firstBody, _ := io.ReadAll(first.Body)

	var firstResult ListObjectsV2Result
	if err := xml.Unmarshal(firstBody, &firstResult); err != nil {
		t.Fatalf("failed to parse first page: %v", err)
	}
	if !firstResult.IsTruncated || firstResult.NextContinuationToken == "" {
		t.Fatalf("expected a next token on the truncated first page, got %+v", firstResult)
	}

	second := f.ListObjectsV2(context.Background(), &apigw.S3Request{
		Bucket: "test-bucket",
		Query:  map[string][]string{"continuation-token": {firstResult.NextContinuationToken}},
	})
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for the second page, got %d", second.StatusCode)
	}
	secondBody, _ := io.ReadAll(second.Body)

	var secondResult ListObjectsV2Result
	if err := xml.Unmarshal(secondBody, &secondResult); err != nil {
		t.Fatalf("failed to parse second page: %v", err)
	}
	if len(secondResult.Contents) != 1 || secondResult.Contents[0].Key != "page-2-key" {
		t.Fatalf("expected the second page to resume from the stored start_after, got %+v", secondResult)
	}
	if secondResult.IsTruncated {
		t.Errorf("expected no further pages")
	}

	if _, err := store.ConsumeListToken(firstResult.NextContinuationToken); err != nil {
		t.Fatalf("expected the first token to remain in the store for inspection: %v", err)
	}
}

func TestBytesCountingReaderTracksReadBytes(t *testing.T) {
	r := &bytesCountingReader{reader: io.NopCloser(stringReader("hello world"))}

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	if err != nil || n != 5 {
		t.Fatalf("unexpected read: n=%d err=%v", n, err)
	}
	if r.totalRead != 5 {
		t.Errorf("expected totalRead=5, got %d", r.totalRead)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if r.totalRead != int64(5+len(rest)) {
		t.Errorf("expected totalRead to accumulate across reads, got %d", r.totalRead)
	}
	if err := r.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func stringReader(s string) io.Reader {
	return &fixedStringReader{s: s}
}

type fixedStringReader struct {
	s string
	i int
}

func (f *fixedStringReader) Read(p []byte) (int, error) {
	if f.i >= len(f.s) {
		return 0, io.EOF
	}
	n := copy(p, f.s[f.i:])
	f.i += n
	return n, nil
}
