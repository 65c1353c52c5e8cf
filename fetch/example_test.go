package fetch_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/fetch"
	"s3proxy/metadatastore"
)

// ExampleFetcher демонстрирует базовое использование Read Router: единственный
// настроенный remote отвечает структурной ошибкой NoSuchKey, которая завершает
// поиск без перехода к другим кандидатам (их тут и нет).
func ExampleFetcher() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
	}))
	defer srv.Close()

	readRequest := true
	backendManager, err := backend.NewManager(&backend.Config{
		Manager: backend.DefaultManagerConfig(),
		Remotes: []backend.RemoteConfig{
			{
				Name:        "primary",
				Priority:    1,
				ReadRequest: &readRequest,
				S3: backend.S3Config{
					Endpoint:  srv.URL,
					Region:    "us-east-1",
					Bucket:    "my-bucket",
					AccessKey: "test",
					SecretKey: "test",
				},
			},
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	fetcher := fetch.NewFetcher(backendManager, metadatastore.NewFakeStore(), "my-bucket")

	req := &apigw.S3Request{
		Operation: apigw.GetObject,
		Bucket:    "my-bucket",
		Key:       "my-object.txt",
		Headers:   make(http.Header),
		Query:     make(url.Values),
		Context:   context.Background(),
	}

	response := fetcher.GetObject(context.Background(), req)
	fmt.Printf("GET Object response status: %d\n", response.StatusCode)

	// Output:
	// GET Object response status: 404
}

// ExampleFetcher_unknownBucket демонстрирует, что запрос к неизвестному бакету
// отклоняется локально, не доходя ни до одного remote.
func ExampleFetcher_unknownBucket() {
	readRequest := true
	backendManager, err := backend.NewManager(&backend.Config{
		Manager: backend.DefaultManagerConfig(),
		Remotes: []backend.RemoteConfig{
			{
				Name:        "primary",
				Priority:    1,
				ReadRequest: &readRequest,
				S3: backend.S3Config{
					Endpoint:  "http://127.0.0.1:1",
					Region:    "us-east-1",
					Bucket:    "my-bucket",
					AccessKey: "test",
					SecretKey: "test",
				},
			},
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	fetcher := fetch.NewFetcher(backendManager, metadatastore.NewFakeStore(), "my-bucket")

	req := &apigw.S3Request{
		Operation: apigw.GetObject,
		Bucket:    "someone-elses-bucket",
		Key:       "my-object.txt",
		Headers:   make(http.Header),
		Query:     make(url.Values),
		Context:   context.Background(),
	}

	response := fetcher.GetObject(context.Background(), req)
	fmt.Printf("GET Object response status: %d\n", response.StatusCode)

	// Output:
	// GET Object response status: 404
}
