package routing

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"s3proxy/apigw"
	"s3proxy/auth"
	"s3proxy/logger"
)

// Engine - это реализация Policy & Routing Engine
type Engine struct {
	auth       auth.Authenticator  // Модуль аутентификации
	replicator ReplicationExecutor // Модуль для записи
	fetcher    FetchingExecutor    // Модуль для чтения
}

// NewEngine создает новый экземпляр Engine
func NewEngine(
	authenticator auth.Authenticator,
	replicator ReplicationExecutor,
	fetcher FetchingExecutor,
) *Engine {
	return &Engine{
		auth:       authenticator,
		replicator: replicator,
		fetcher:    fetcher,
	}
}

// Handle - реализация интерфейса RequestHandler. Это точка входа в модуль
func (e *Engine) Handle(req *apigw.S3Request) *apigw.S3Response {
	logger.Debug("Policy & Routing Engine: handling request - Operation: %s, Bucket: %s, Key: %s",
		req.Operation, req.Bucket, req.Key)

	identity, err := e.auth.Authenticate(req)
	if err != nil {
		logger.Debug("Authentication failed: %v", err)
		return e.createAuthErrorResponse(err)
	}

	logger.Debug("authenticated as %s (%s)", identity.DisplayName, identity.AccessKey)

	switch req.Operation {
	case apigw.PutObject:
		return e.replicator.PutObject(req.Context, req)

	case apigw.DeleteObject:
		return e.replicator.DeleteObject(req.Context, req)

	case apigw.DeleteObjects:
		return e.replicator.DeleteObjects(req.Context, req)

	case apigw.CreateMultipartUpload:
		return e.replicator.CreateMultipartUpload(req.Context, req)

	case apigw.UploadPart:
		return e.replicator.UploadPart(req.Context, req)

	case apigw.CompleteMultipartUpload:
		return e.replicator.CompleteMultipartUpload(req.Context, req)

	case apigw.AbortMultipartUpload:
		return e.replicator.AbortMultipartUpload(req.Context, req)

	case apigw.GetObject:
		return e.fetcher.GetObject(req.Context, req)

	case apigw.HeadObject:
		return e.fetcher.HeadObject(req.Context, req)

	case apigw.HeadBucket:
		return e.fetcher.HeadBucket(req.Context, req)

	case apigw.ListObjectsV2:
		return e.fetcher.ListObjectsV2(req.Context, req)

	case apigw.ListBuckets:
		return e.fetcher.ListBuckets(req.Context, req)

	case apigw.ListMultipartUploads:
		return e.fetcher.ListMultipartUploads(req.Context, req)

	default:
		logger.Warn("Unsupported operation: %s", req.Operation)
		return e.createOperationNotImplementedResponse(req.Operation)
	}
}

// createAuthErrorResponse преобразует ошибку аутентификации в стандартный S3Response
func (e *Engine) createAuthErrorResponse(err error) *apigw.S3Response {
	var code string
	var message string
	var statusCode int

	switch {
	case errors.Is(err, auth.ErrMissingAuthHeader):
		code = "MissingSecurityHeader"
		message = "Your request was missing a required header."
		statusCode = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidAccessKeyID):
		code = "InvalidAccessKeyId"
		message = "The Access Key Id you provided does not exist in our records."
		statusCode = http.StatusForbidden
	case errors.Is(err, auth.ErrSignatureMismatch):
		code = "SignatureDoesNotMatch"
		message = "The request signature we calculated does not match the signature you provided."
		statusCode = http.StatusForbidden
	case errors.Is(err, auth.ErrRequestExpired):
		code = "RequestTimeTooSkewed"
		message = "The difference between the request time and the current time is too large."
		statusCode = http.StatusForbidden
	default:
		code = "AccessDenied"
		message = "Access Denied"
		statusCode = http.StatusForbidden
	}

	errorBody := e.formatS3ErrorXML(code, message)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(errorBody)))

	return &apigw.S3Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(errorBody)),
		Headers:    headers,
	}
}

// createOperationNotImplementedResponse создает ответ для неподдерживаемых операций
func (e *Engine) createOperationNotImplementedResponse(operation apigw.S3Operation) *apigw.S3Response {
	code := "NotImplemented"
	message := fmt.Sprintf("The operation %s is not implemented", operation)
	statusCode := http.StatusNotImplemented

	errorBody := e.formatS3ErrorXML(code, message)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(errorBody)))

	return &apigw.S3Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(errorBody)),
		Headers:    headers,
	}
}

// formatS3ErrorXML форматирует ошибку в стандартный S3 XML формат
func (e *Engine) formatS3ErrorXML(code, message string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
    <Code>%s</Code>
    <Message>%s</Message>
    <RequestId>%s</RequestId>
    <HostId>%s</HostId>
</Error>`, code, message, "policy-routing-engine", "s3proxy")
}
