package routing

import (
	"context"

	"s3proxy/apigw"
)

// ReplicationExecutor - интерфейс для модуля, выполняющего запись на remote-хранилища.
// Ack-уровень и read-стратегия больше не параметризуются запросом: fan-out всегда
// идет на все сконфигурированные remote, а Read Router всегда идет по фиксированному
// приоритетному порядку - поэтому методы не принимают policy.
type ReplicationExecutor interface {
	PutObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	DeleteObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	DeleteObjects(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	CreateMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	UploadPart(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	CompleteMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	AbortMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
}

// FetchingExecutor - интерфейс для модуля, выполняющего чтение с remote-хранилищ
// через Read Router.
type FetchingExecutor interface {
	GetObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	HeadObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	HeadBucket(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	ListObjectsV2(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	ListBuckets(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
	ListMultipartUploads(ctx context.Context, req *apigw.S3Request) *apigw.S3Response
}
