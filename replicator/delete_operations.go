package replicator

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"s3proxy/apigw"
	"s3proxy/backend"
)

// DeleteObject реализует fan-out удаления одного объекта на все remote-хранилища
func (r *Replicator) DeleteObject(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	opCtx := newOperationContext(ctx, "DELETE_OBJECT", req.Bucket, req.Key)

	targets := r.remoteManager.GetAllRemotes()
	if len(targets) == 0 {
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available to handle the operation")
	}

	calls := callsFor(targets, func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			response, err := remote.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(remote.Config.Bucket),
				Key:    aws.String(req.Key),
			})
			return response, 0, 0, err
		}
	})

	results := r.dispatch(opCtx.ctx, "DeleteObject", r.config.DeleteConcurrency, calls)
	return r.resolveWrite(results, convertDeleteResult)
}

func convertDeleteResult(res backend.Result) *apigw.S3Response {
	headers := make(http.Header)
	if deleteOutput, ok := res.Response.(*s3.DeleteObjectOutput); ok {
		if deleteOutput.VersionId != nil {
			headers.Set("x-amz-version-id", *deleteOutput.VersionId)
		}
		if deleteOutput.DeleteMarker != nil && *deleteOutput.DeleteMarker {
			headers.Set("x-amz-delete-marker", "true")
		}
	}
	return &apigw.S3Response{StatusCode: http.StatusNoContent, Headers: headers}
}

// deleteObjectsRequestXML - тело запроса bulk-удаления (POST ?delete)
type deleteObjectsRequestXML struct {
	XMLName xml.Name `xml:"Delete"`
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

// DeleteObjects реализует fan-out множественного удаления (POST /?delete) на все
// remote-хранилища. В отличие от одиночного DeleteObject, у этой операции
// единственный "успех" - завершение самого запроса DeleteObjects
// на remote; содержимое индивидуальных ошибок по ключам внутри ответа remote
// не разбирается отдельно, т.к. remote-хранилища считаются зеркалами одного набора ключей.
func (r *Replicator) DeleteObjects(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	opCtx := newOperationContext(ctx, "DELETE_OBJECTS", req.Bucket, "")

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return r.createErrorResponse(http.StatusBadRequest, "MalformedXML", "Failed to read request body")
	}

	var parsed deleteObjectsRequestXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return r.createErrorResponse(http.StatusBadRequest, "MalformedXML", "Failed to parse delete request body")
	}

	objects := make([]types.ObjectIdentifier, 0, len(parsed.Objects))
	for _, obj := range parsed.Objects {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(obj.Key)})
	}

	targets := r.remoteManager.GetAllRemotes()
	if len(targets) == 0 {
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available to handle the operation")
	}

	calls := callsFor(targets, func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			response, err := remote.S3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(remote.Config.Bucket),
				Delete: &types.Delete{Objects: objects},
			})
			return response, 0, 0, err
		}
	})

	results := r.dispatch(opCtx.ctx, "DeleteObjects", r.config.DeleteConcurrency, calls)
	return r.resolveWrite(results, convertDeleteObjectsResult)
}

func convertDeleteObjectsResult(res backend.Result) *apigw.S3Response {
	out, ok := res.Response.(*s3.DeleteObjectsOutput)
	if !ok {
		return &apigw.S3Response{StatusCode: http.StatusOK}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<DeleteResult>")
	for _, d := range out.Deleted {
		b.WriteString(fmt.Sprintf("<Deleted><Key>%s</Key></Deleted>", aws.ToString(d.Key)))
	}
	for _, e := range out.Errors {
		b.WriteString(fmt.Sprintf("<Error><Key>%s</Key><Code>%s</Code><Message>%s</Message></Error>",
			aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
	}
	b.WriteString("</DeleteResult>")

	bodyStr := b.String()
	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(bodyStr)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(bodyStr)),
	}
}
