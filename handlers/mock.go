package handlers

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"s3proxy/apigw"
	"s3proxy/logger"
)

// MockHandler - RequestHandler без реального fan-out, отвечающий
// правдоподобными S3-ответами для одного виртуального бакета. Используется
// вместо routing.Engine, когда нужно поднять API Gateway без backend-ов,
// metadatastore и аутентификации - например, чтобы проверить сам HTTP-слой.
type MockHandler struct {
	// VirtualBucket - имя единственного бакета, который эта точка входа
	// выдает клиенту, вне зависимости от того, сколько remote-ов стоит за ней.
	VirtualBucket string
}

// NewMockHandler создает обработчик с бакетом по умолчанию
func NewMockHandler() *MockHandler {
	return &MockHandler{VirtualBucket: "s3proxy-bucket"}
}

// NewMockHandlerWithBucket создает обработчик, выдающий заданное имя виртуального бакета
func NewMockHandlerWithBucket(bucket string) *MockHandler {
	if bucket == "" {
		return NewMockHandler()
	}
	return &MockHandler{VirtualBucket: bucket}
}

// Handle реализует интерфейс RequestHandler
func (h *MockHandler) Handle(req *apigw.S3Request) *apigw.S3Response {
	logger.Debug("MockHandler: handling request - Operation: %s, Bucket: %s, Key: %s",
		req.Operation.String(), req.Bucket, req.Key)

	switch req.Operation {
	case apigw.GetObject:
		return h.handleGetObject(req)
	case apigw.PutObject:
		return h.handlePutObject(req)
	case apigw.HeadObject:
		return h.handleHeadObject(req)
	case apigw.HeadBucket:
		return h.handleHeadBucket(req)
	case apigw.DeleteObject:
		return h.handleDeleteObject(req)
	case apigw.DeleteObjects:
		return h.handleDeleteObjects(req)
	case apigw.ListObjectsV2:
		return h.handleListObjects(req)
	case apigw.ListBuckets:
		return h.handleListBuckets(req)
	case apigw.CreateMultipartUpload:
		return h.handleCreateMultipartUpload(req)
	case apigw.UploadPart:
		return h.handleUploadPart(req)
	case apigw.CompleteMultipartUpload:
		return h.handleCompleteMultipartUpload(req)
	case apigw.AbortMultipartUpload:
		return h.handleAbortMultipartUpload(req)
	case apigw.ListMultipartUploads:
		return h.handleListMultipartUploads(req)
	default:
		return &apigw.S3Response{
			StatusCode: http.StatusNotImplemented,
			Error:      fmt.Errorf("operation %s not implemented", req.Operation.String()),
		}
	}
}

func (h *MockHandler) handleGetObject(req *apigw.S3Request) *apigw.S3Response {
	content := fmt.Sprintf("mock content for %s/%s (served without fan-out)", req.Bucket, req.Key)

	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(content)))
	headers.Set("ETag", `"mock-etag-12345"`)

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(content)),
	}
}

func (h *MockHandler) handlePutObject(req *apigw.S3Request) *apigw.S3Response {
	// Реальный Replicator здесь разослал бы тело через multiplier по всем
	// remote-ам; мок просто подтверждает прием без записи куда-либо.
	headers := make(http.Header)
	headers.Set("ETag", `"mock-etag-67890"`)

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleHeadObject(req *apigw.S3Request) *apigw.S3Response {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain")
	headers.Set("Content-Length", "100")
	headers.Set("ETag", `"mock-etag-12345"`)
	headers.Set("Last-Modified", "Wed, 20 Jun 2025 20:00:00 GMT")

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleHeadBucket(req *apigw.S3Request) *apigw.S3Response {
	headers := make(http.Header)
	headers.Set("x-amz-bucket-region", "us-east-1")

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleDeleteObject(req *apigw.S3Request) *apigw.S3Response {
	return &apigw.S3Response{
		StatusCode: http.StatusNoContent,
	}
}

// deleteObjectsRequestXML - тело batch-delete запроса, как его шлет клиент
type deleteObjectsRequestXML struct {
	XMLName xml.Name `xml:"Delete"`
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

func (h *MockHandler) handleDeleteObjects(req *apigw.S3Request) *apigw.S3Response {
	var parsed deleteObjectsRequestXML
	if req.Body != nil {
		if body, err := io.ReadAll(req.Body); err == nil {
			_ = xml.Unmarshal(body, &parsed)
		}
	}

	var deleted strings.Builder
	for _, obj := range parsed.Objects {
		deleted.WriteString(fmt.Sprintf("    <Deleted><Key>%s</Key></Deleted>\n", obj.Key))
	}

	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
%s</DeleteResult>`, deleted.String())

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}

func (h *MockHandler) handleListObjects(req *apigw.S3Request) *apigw.S3Response {
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Name>%s</Name>
    <Prefix></Prefix>
    <Marker></Marker>
    <MaxKeys>1000</MaxKeys>
    <IsTruncated>false</IsTruncated>
    <Contents>
        <Key>example-object.txt</Key>
        <LastModified>2025-06-20T20:00:00.000Z</LastModified>
        <ETag>"mock-etag-example"</ETag>
        <Size>100</Size>
        <StorageClass>STANDARD</StorageClass>
    </Contents>
</ListBucketResult>`, req.Bucket)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}

// handleListBuckets возвращает единственный виртуальный бакет - в отличие от
// обычного S3, у этого шлюза нет понятия "список бакетов пользователя",
// клиент всегда работает с одним именем, сконфигурированным оператором.
func (h *MockHandler) handleListBuckets(req *apigw.S3Request) *apigw.S3Response {
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Owner>
        <ID>mock-owner-id</ID>
        <DisplayName>mock-owner</DisplayName>
    </Owner>
    <Buckets>
        <Bucket>
            <Name>%s</Name>
            <CreationDate>2025-06-20T20:00:00.000Z</CreationDate>
        </Bucket>
    </Buckets>
</ListAllMyBucketsResult>`, h.VirtualBucket)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}

func (h *MockHandler) handleCreateMultipartUpload(req *apigw.S3Request) *apigw.S3Response {
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<InitiateMultipartUploadResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Bucket>%s</Bucket>
    <Key>%s</Key>
    <UploadId>mock-upload-id-12345</UploadId>
</InitiateMultipartUploadResult>`, req.Bucket, req.Key)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}

func (h *MockHandler) handleUploadPart(req *apigw.S3Request) *apigw.S3Response {
	headers := make(http.Header)
	headers.Set("ETag", `"mock-part-etag-12345"`)

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

func (h *MockHandler) handleCompleteMultipartUpload(req *apigw.S3Request) *apigw.S3Response {
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUploadResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Location>http://example.com/%s/%s</Location>
    <Bucket>%s</Bucket>
    <Key>%s</Key>
    <ETag>"mock-final-etag-12345"</ETag>
</CompleteMultipartUploadResult>`, req.Bucket, req.Key, req.Bucket, req.Key)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}

func (h *MockHandler) handleAbortMultipartUpload(req *apigw.S3Request) *apigw.S3Response {
	return &apigw.S3Response{
		StatusCode: http.StatusNoContent,
	}
}

func (h *MockHandler) handleListMultipartUploads(req *apigw.S3Request) *apigw.S3Response {
	xmlContent := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ListMultipartUploadsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
    <Bucket>%s</Bucket>
    <KeyMarker></KeyMarker>
    <UploadIdMarker></UploadIdMarker>
    <NextKeyMarker></NextKeyMarker>
    <NextUploadIdMarker></NextUploadIdMarker>
    <MaxUploads>1000</MaxUploads>
    <IsTruncated>false</IsTruncated>
    <Upload>
        <Key>example-multipart-object</Key>
        <UploadId>mock-upload-id-12345</UploadId>
        <Initiated>2025-06-20T20:00:00.000Z</Initiated>
        <StorageClass>STANDARD</StorageClass>
    </Upload>
</ListMultipartUploadsResult>`, req.Bucket)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(xmlContent)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(xmlContent)),
	}
}
