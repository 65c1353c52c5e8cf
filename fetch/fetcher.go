package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/logger"
)

// route перебирает remote в порядке (read_request desc, priority desc), пробуя
// их строго последовательно - один за раз, никогда не гонясь за несколькими
// одновременно. Первый ответ (успешный или структурная S3-ошибка) завершает
// поиск. "Unreachable" пропускает кандидата и переходит к следующему. Если
// список исчерпан без единого ответа, возвращает ok=false.
func (f *Fetcher) route(ctx context.Context, op string, build func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error)) (backend.Result, bool) {
	candidates := f.candidateOrder()

	for _, remote := range candidates {
		res := remote.Submit(ctx, op, build(remote))
		f.recordResult(res)

		if res.Unreachable {
			logger.Warn("Read Router: remote '%s' unreachable for %s, trying next candidate", remote.Name, op)
			continue
		}

		logger.Debug("Read Router: remote '%s' answered %s (err=%v), terminating search", remote.Name, op, res.Err)
		return res, true
	}

	logger.Error("Read Router: all candidates exhausted without a reply for %s", op)
	return backend.Result{}, false
}

func (f *Fetcher) recordResult(res backend.Result) {
	f.remoteManager.RecordMetrics(res)

	if res.Err == nil && !res.Unreachable {
		f.remoteManager.ReportSuccess(res.RemoteName)
		return
	}

	err := res.Err
	if err == nil {
		err = &backend.ProtocolError{Code: "InternalError", Message: "remote unreachable"}
	}
	f.remoteManager.ReportFailure(res.RemoteName, err)
}

// errorResponseForResult преобразует неуспешный Result в S3Response, предпочитая
// протокольную S3-ошибку remote, иначе откатываясь к общей ошибке.
func (f *Fetcher) errorResponseForResult(res backend.Result) *apigw.S3Response {
	if pe, ok := res.Err.(*backend.ProtocolError); ok {
		return apigw.NewErrorResponse(pe.StatusCode, pe.Code, pe.Message, pe.RequestID)
	}
	message := "Unknown error"
	if res.Err != nil {
		message = res.Err.Error()
	}
	return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", message, "")
}

// checkVirtualBucket проверяет, что клиент обращается к сконфигурированному
// единственному виртуальному бакету.
func (f *Fetcher) checkVirtualBucket(bucket string) *apigw.S3Response {
	if bucket != f.virtualBucket {
		return apigw.NewErrorResponse(http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", "")
	}
	return nil
}

// GetObject обслуживает чтение объекта через Read Router.
func (f *Fetcher) GetObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	if errResp := f.checkVirtualBucket(req.Bucket); errResp != nil {
		return errResp
	}

	res, ok := f.route(ctx, "GET_OBJECT", func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			out, err := remote.S3Client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(remote.Config.Bucket),
				Key:    aws.String(req.Key),
			})
			if err != nil {
				return nil, 0, 0, err
			}
			return out, 0, aws.ToInt64(out.ContentLength), nil
		}
	})
	if !ok {
		return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", "No remote answered the request", "")
	}
	if res.Err != nil {
		return f.errorResponseForResult(res)
	}

	out := res.Response.(*s3.GetObjectOutput)
	headers := make(http.Header)
	if out.ContentType != nil {
		headers.Set("Content-Type", *out.ContentType)
	}
	if out.ContentLength != nil {
		headers.Set("Content-Length", fmt.Sprintf("%d", *out.ContentLength))
	}
	if out.ETag != nil {
		headers.Set("ETag", *out.ETag)
	}
	if out.LastModified != nil {
		headers.Set("Last-Modified", out.LastModified.UTC().Format(http.TimeFormat))
	}

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       &bytesCountingReader{reader: out.Body},
	}
}

// HeadObject обслуживает проверку метаданных объекта через Read Router.
func (f *Fetcher) HeadObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	if errResp := f.checkVirtualBucket(req.Bucket); errResp != nil {
		return errResp
	}

	res, ok := f.route(ctx, "HEAD_OBJECT", func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			out, err := remote.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(remote.Config.Bucket),
				Key:    aws.String(req.Key),
			})
			if err != nil {
				return nil, 0, 0, err
			}
			return out, 0, 0, nil
		}
	})
	if !ok {
		return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", "No remote answered the request", "")
	}
	if res.Err != nil {
		return f.errorResponseForResult(res)
	}

	out := res.Response.(*s3.HeadObjectOutput)
	headers := make(http.Header)
	if out.ContentType != nil {
		headers.Set("Content-Type", *out.ContentType)
	}
	if out.ContentLength != nil {
		headers.Set("Content-Length", fmt.Sprintf("%d", *out.ContentLength))
	}
	if out.ETag != nil {
		headers.Set("ETag", *out.ETag)
	}
	if out.LastModified != nil {
		headers.Set("Last-Modified", out.LastModified.UTC().Format(http.TimeFormat))
	}

	return &apigw.S3Response{StatusCode: http.StatusOK, Headers: headers}
}

// HeadBucket не маршрутизируется к remote - единственный виртуальный бакет
// существует тождественно по конфигурации. Отдельной операции GetBucketLocation
// нет: парсер разбирает GET /bucket?location как ListObjectsV2.
func (f *Fetcher) HeadBucket(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	if errResp := f.checkVirtualBucket(req.Bucket); errResp != nil {
		return errResp
	}
	return &apigw.S3Response{StatusCode: http.StatusOK, Headers: make(http.Header)}
}

// ListMultipartUploads не входит в реализуемый клиент-обращенный набор операций.
func (f *Fetcher) ListMultipartUploads(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	return apigw.NewErrorResponse(http.StatusNotImplemented, "NotImplemented", "ListMultipartUploads is not supported", "")
}

// bytesCountingReader оборачивает тело GetObject для возможности учета
// фактически переданных клиенту байт на уровне API Gateway.
type bytesCountingReader struct {
	reader    interface {
		Read(p []byte) (int, error)
		Close() error
	}
	totalRead int64
}

func (b *bytesCountingReader) Read(p []byte) (n int, err error) {
	n, err = b.reader.Read(p)
	b.totalRead += int64(n)
	return n, err
}

func (b *bytesCountingReader) Close() error {
	return b.reader.Close()
}
