package backend

import (
	"errors"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// ProtocolError - это протокольная S3-ошибка, полученная преобразованием
// SDK-уровневой ошибки удаленного хранилища.
// Отличается от Unreachable: ProtocolError значит "remote ответил", просто ответ - ошибка.
type ProtocolError struct {
	Code       string
	Message    string
	RequestID  string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

// knownS3Codes - коды, которые мы готовы передать клиенту как есть.
// Всё остальное схлопывается в InternalError.
var knownS3Codes = map[string]bool{
	"NoSuchKey": true, "NoSuchBucket": true, "NoSuchUpload": true,
	"AccessDenied": true, "InvalidAccessKeyId": true, "SignatureDoesNotMatch": true,
	"InvalidToken": true, "InvalidArgument": true, "EntityTooLarge": true,
	"BucketAlreadyExists": true, "BucketNotEmpty": true, "RequestTimeout": true,
	"SlowDown": true, "PreconditionFailed": true,
}

// convertSDKError реализует преобразование ошибки SDK в ProtocolError:
// (i) код, если он распознан, иначе InternalError; (ii) сообщение SDK;
// (iii) request id SDK; (iv) HTTP статус.
func convertSDKError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	pe := &ProtocolError{
		Code:       "InternalError",
		Message:    err.Error(),
		StatusCode: http.StatusInternalServerError,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if knownS3Codes[apiErr.ErrorCode()] {
			pe.Code = apiErr.ErrorCode()
		}
		pe.Message = apiErr.ErrorMessage()
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		pe.RequestID = respErr.RequestID
		if respErr.Response != nil && respErr.Response.StatusCode != 0 {
			pe.StatusCode = respErr.Response.StatusCode
		}
	}

	if pe.StatusCode == http.StatusInternalServerError {
		pe.StatusCode = statusForCode(pe.Code)
	}

	return pe
}

func statusForCode(code string) int {
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchUpload":
		return http.StatusNotFound
	case "AccessDenied":
		return http.StatusForbidden
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return http.StatusForbidden
	case "InvalidToken", "InvalidArgument":
		return http.StatusBadRequest
	case "BucketAlreadyExists", "BucketNotEmpty":
		return http.StatusConflict
	case "PreconditionFailed":
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// isUnreachable отличает транспортную ошибку (нет ответа от remote) от
// протокольной ошибки сервиса. smithy.APIError говорит "remote ответил кодом ошибки" -
// это не Unreachable. Всё остальное (DNS, connection refused, таймаут, context canceled)
// трактуется как транспортный сбой.
func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	return !errors.As(err, &apiErr)
}
