package fetch

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/logger"
	"s3proxy/metadatastore"
)

// ListBucketsResult - тело ответа ListBuckets.
type ListBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Owner   Owner    `xml:"Owner"`
	Buckets Buckets  `xml:"Buckets"`
}

type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

type Buckets struct {
	Bucket []Bucket `xml:"Bucket"`
}

type Bucket struct {
	Name         string    `xml:"Name"`
	CreationDate time.Time `xml:"CreationDate"`
}

// ListObjectsV2Result - тело ответа ListObjectsV2.
type ListObjectsV2Result struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string   `xml:"Name"`
	Prefix                string   `xml:"Prefix,omitempty"`
	KeyCount              int32    `xml:"KeyCount"`
	MaxKeys               int32    `xml:"MaxKeys"`
	IsTruncated           bool     `xml:"IsTruncated"`
	ContinuationToken     string   `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string   `xml:"NextContinuationToken,omitempty"`
	Contents              []Object `xml:"Contents"`
}

type Object struct {
	Key          string    `xml:"Key"`
	LastModified time.Time `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	StorageClass string    `xml:"StorageClass,omitempty"`
}

// ListBuckets всегда возвращает единственный сконфигурированный виртуальный бакет.
func (f *Fetcher) ListBuckets(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	result := ListBucketsResult{
		Owner: Owner{ID: "s3proxy-owner-id", DisplayName: "s3proxy-owner"},
		Buckets: Buckets{Bucket: []Bucket{
			{Name: f.virtualBucket, CreationDate: time.Now().UTC()},
		}},
	}

	return xmlResponse(&result)
}

// ListObjectsV2 реализует Listing Token Translator поверх Read Router: на входе
// переводит client-visible continuation_token в переносимый start_after через
// metadatastore.Store, на выходе синтезирует новый токен из последнего ключа
// страницы, если remote сообщил о наличии продолжения.
func (f *Fetcher) ListObjectsV2(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	if errResp := f.checkVirtualBucket(req.Bucket); errResp != nil {
		return errResp
	}

	clientToken := req.Query.Get("continuation-token")
	startAfter := req.Query.Get("start-after")

	if clientToken != "" {
		tok, err := f.store.ConsumeListToken(clientToken)
		if errors.Is(err, metadatastore.ErrNotFound) {
			return apigw.NewErrorResponse(http.StatusBadRequest, "InvalidToken", "The continuation token provided is invalid", "")
		}
		if err != nil {
			logger.Error("ListObjectsV2: metadata store failure consuming continuation token: %v", err)
			return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", "Metadata store unavailable", "")
		}
		// Сохраненный start_after имеет приоритет над тем, что прислал клиент.
		startAfter = tok.StartAfter
	}

	prefix := req.Query.Get("prefix")
	delimiter := req.Query.Get("delimiter")
	maxKeys := int32(1000)
	if v := req.Query.Get("max-keys"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil && parsed > 0 {
			maxKeys = int32(parsed)
		}
	}

	res, ok := f.route(ctx, "LIST_OBJECTS_V2", func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			input := &s3.ListObjectsV2Input{
				Bucket:  aws.String(remote.Config.Bucket),
				MaxKeys: aws.Int32(maxKeys),
			}
			if prefix != "" {
				input.Prefix = aws.String(prefix)
			}
			if delimiter != "" {
				input.Delimiter = aws.String(delimiter)
			}
			if startAfter != "" {
				input.StartAfter = aws.String(startAfter)
			}
			out, err := remote.S3Client.ListObjectsV2(ctx, input)
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

	out := res.Response.(*s3.ListObjectsV2Output)

	objects := make([]Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		objects = append(objects, Object{
			Key:          aws.ToString(o.Key),
			LastModified: aws.ToTime(o.LastModified),
			ETag:         aws.ToString(o.ETag),
			Size:         aws.ToInt64(o.Size),
			StorageClass: string(o.StorageClass),
		})
	}

	var nextToken string
	if aws.ToBool(out.IsTruncated) && len(objects) > 0 {
		lastKey := objects[len(objects)-1].Key
		tok, err := f.store.InsertListToken(lastKey)
		if err != nil {
			logger.Error("ListObjectsV2: metadata store failure inserting next token: %v", err)
			return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", "Metadata store unavailable", "")
		}
		nextToken = tok.ID
	}
	// Если IsTruncated=true, но contents пуст, намеренно не выдаем nextToken -
	// клиенту нечем было бы продолжить, а страница без ключей и так бесполезна.

	result := ListObjectsV2Result{
		Name:                  req.Bucket,
		Prefix:                prefix,
		MaxKeys:               maxKeys,
		KeyCount:              int32(len(objects)),
		IsTruncated:           nextToken != "",
		ContinuationToken:     clientToken,
		NextContinuationToken: nextToken,
		Contents:              objects,
	}

	return xmlResponse(&result)
}

func xmlResponse(v interface{}) *apigw.S3Response {
	xmlData, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return apigw.NewErrorResponse(http.StatusInternalServerError, "InternalError", err.Error(), "")
	}

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", strconv.Itoa(len(xmlData)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(bytes.NewReader(xmlData)),
	}
}
