package replicator

import (
	"context"
	"io"
	"net/http"
	"strings"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/multiplier"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PutObject реализует fan-out записи объекта на все remote-хранилища.
// Тело запроса дублируется через Body Multiplier без полной буферизации.
func (r *Replicator) PutObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	opCtx := newOperationContext(ctx, "PUT_OBJECT", req.Bucket, req.Key)

	targets := r.remoteManager.GetAllRemotes()
	if len(targets) == 0 {
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available to handle the operation")
	}

	mult := multiplier.New(req.Body)
	derived := make([]io.ReadCloser, len(targets))
	for i := range targets {
		derived[i] = mult.Derive()
	}
	mult.Close()

	calls := make([]remoteCall, len(targets))
	for i, remote := range targets {
		calls[i] = remoteCall{
			remote: remote,
			exec:   r.putExec(remote, req, derived[i]),
		}
	}

	results := r.dispatch(opCtx.ctx, "PutObject", r.config.PutConcurrency, calls)
	return r.resolveWrite(results, convertPutResult)
}

// putExec строит exec-функцию PutObject для одного remote. Derived-хендл
// закрывается по завершении вызова вне зависимости от исхода, чтобы Multiplier.Done()
// сработал даже для remote, завершившегося ошибкой.
func (r *Replicator) putExec(remote *backend.Remote, req *apigw.S3Request, body io.ReadCloser) func(context.Context) (interface{}, int64, int64, error) {
	return func(ctx context.Context) (interface{}, int64, int64, error) {
		defer body.Close()
		countingReader := NewCountingReader(body)

		isStreamingClient := remote.StreamingPutClient != nil
		client := remote.S3Client
		if isStreamingClient {
			client = remote.StreamingPutClient
		}

		putInput := &s3.PutObjectInput{
			Bucket: aws.String(remote.Config.Bucket),
			Key:    aws.String(req.Key),
			Body:   countingReader,
		}

		if req.ContentLength > 0 {
			putInput.ContentLength = aws.Int64(req.ContentLength)
		}

		metadata := make(map[string]string)
		for key, values := range req.Headers {
			if len(values) == 0 {
				continue
			}
			canonicalKey := http.CanonicalHeaderKey(key)
			value := values[0]

			switch canonicalKey {
			case "Content-Type":
				putInput.ContentType = aws.String(value)
			case "Content-Encoding":
				putInput.ContentEncoding = aws.String(value)
			case "Content-Md5":
				putInput.ContentMD5 = aws.String(value)
			case "Cache-Control":
				putInput.CacheControl = aws.String(value)
			case "X-Amz-Storage-Class":
				putInput.StorageClass = types.StorageClass(value)
			case "X-Amz-Content-Sha256":
				if !isStreamingClient {
					putInput.ChecksumSHA256 = aws.String(value)
				}
			case "Authorization", "X-Amz-Date", "Host", "Content-Length":
				continue
			default:
				if strings.HasPrefix(canonicalKey, "X-Amz-Meta-") {
					metaKey := strings.TrimPrefix(canonicalKey, "X-Amz-Meta-")
					metadata[strings.ToLower(metaKey)] = value
				}
			}
		}
		if len(metadata) > 0 {
			putInput.Metadata = metadata
		}

		response, err := client.PutObject(ctx, putInput)
		return response, countingReader.Count(), 0, err
	}
}

// convertPutResult преобразует успешный Result операции PutObject в S3Response
func convertPutResult(res backend.Result) *apigw.S3Response {
	headers := make(http.Header)
	if putOutput, ok := res.Response.(*s3.PutObjectOutput); ok {
		if putOutput.ETag != nil {
			headers.Set("ETag", *putOutput.ETag)
		}
		if putOutput.VersionId != nil {
			headers.Set("x-amz-version-id", *putOutput.VersionId)
		}
	}
	return &apigw.S3Response{StatusCode: http.StatusOK, Headers: headers}
}
