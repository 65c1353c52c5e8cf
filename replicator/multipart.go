package replicator

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/logger"
	"s3proxy/metadatastore"
	"s3proxy/multiplier"
)

// CreateMultipartUpload инициирует multipart upload на каждом remote и
// персистирует полученный набор upload_id в metadata store
func (r *Replicator) CreateMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	opCtx := newOperationContext(ctx, "CREATE_MULTIPART_UPLOAD", req.Bucket, req.Key)

	targets := r.remoteManager.GetAllRemotes()
	if len(targets) == 0 {
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available to handle the operation")
	}

	calls := callsFor(targets, func(remote *backend.Remote) func(context.Context) (interface{}, int64, int64, error) {
		return func(ctx context.Context) (interface{}, int64, int64, error) {
			input := &s3.CreateMultipartUploadInput{
				Bucket: aws.String(remote.Config.Bucket),
				Key:    aws.String(req.Key),
			}
			if contentType := req.Headers.Get("Content-Type"); contentType != "" {
				input.ContentType = aws.String(contentType)
			}
			if contentEncoding := req.Headers.Get("Content-Encoding"); contentEncoding != "" {
				input.ContentEncoding = aws.String(contentEncoding)
			}
			response, err := remote.S3Client.CreateMultipartUpload(ctx, input)
			return response, 0, 0, err
		}
	})

	results := r.dispatch(opCtx.ctx, "CreateMultipartUpload", r.config.PutConcurrency, calls)

	var entries []metadatastore.RemoteUploadID
	for _, res := range results {
		if res.Err != nil || res.Unreachable {
			logger.Warn("CreateMultipartUpload: remote '%s' failed: %v", res.RemoteName, res.Err)
			continue
		}
		out, ok := res.Response.(*s3.CreateMultipartUploadOutput)
		if !ok || out.UploadId == nil {
			continue
		}
		entries = append(entries, metadatastore.RemoteUploadID{
			RemoteName: res.RemoteName,
			UploadID:   *out.UploadId,
			Status:     metadatastore.StatusOpen,
		})
	}

	if len(entries) == 0 {
		logger.Error("CreateMultipartUpload: failed on all %d remotes", len(targets))
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "Failed to create multipart upload on any remote")
	}

	session, err := r.store.CreateMultipartSession(req.Bucket, req.Key, entries)
	if err != nil {
		logger.Error("CreateMultipartUpload: failed to persist session: %v", err)
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "Failed to persist multipart session")
	}

	logger.Info("CreateMultipartUpload: created session %s with %d/%d remotes open", session.ID, len(entries), len(targets))
	if r.metrics != nil {
		r.metrics.MultipartActiveUploads.Inc()
	}
	return r.createMultipartUploadResponse(req, session.ID)
}

// loadOpenSession ищет сессию по client-visible upload_id и отклоняет
// отсутствующую или терминальную запись кодом InvalidToken
func (r *Replicator) loadOpenSession(uploadID string) (*metadatastore.MultipartSession, *apigw.S3Response) {
	session, err := r.store.GetMultipartSession(uploadID)
	if err != nil {
		return nil, r.createErrorResponse(http.StatusBadRequest, "InvalidToken", "The specified multipart upload does not exist")
	}
	if session.IsTerminal() {
		return nil, r.createErrorResponse(http.StatusBadRequest, "InvalidToken", "The specified multipart upload is no longer open")
	}
	return session, nil
}

// UploadPart загружает одну часть на все Open remote этой multipart-сессии
func (r *Replicator) UploadPart(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	uploadID := req.Query.Get("uploadId")
	partNumberStr := req.Query.Get("partNumber")

	opCtx := newOperationContext(ctx, "UPLOAD_PART", req.Bucket, req.Key)

	session, errResp := r.loadOpenSession(uploadID)
	if errResp != nil {
		return errResp
	}

	targets := r.resolveTargetsForSession(session)
	if len(targets) == 0 {
		logger.Warn("UploadPart: no live remotes remain open for session %s", session.ID)
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available for this multipart session")
	}

	partNum, err := strconv.ParseInt(partNumberStr, 10, 32)
	if err != nil {
		return r.createErrorResponse(http.StatusBadRequest, "InvalidArgument", "Invalid part number")
	}

	mult := multiplier.New(req.Body)
	derived := make([]io.ReadCloser, len(targets))
	for i := range targets {
		derived[i] = mult.Derive()
	}
	mult.Close()

	calls := make([]remoteCall, len(targets))
	for i, remote := range targets {
		remoteUploadID, _ := uploadIDForRemote(session, remote.Name)
		calls[i] = remoteCall{remote: remote, exec: r.uploadPartExec(remote, req, derived[i], remoteUploadID, int32(partNum))}
	}

	results := r.dispatch(opCtx.ctx, "UploadPart", r.config.PutConcurrency, calls)
	r.recordPartResults(results)

	// Транспортный отказ отменяет remote для последующих частей этой сессии;
	// протокольная ошибка (например, переотправленная часть) не вычеркивает remote -
	// он всё ещё может принять следующую часть.
	r.persistStatusUpdate(session, results, func(res backend.Result) bool { return res.Unreachable })

	return r.resolveWrite(results, convertUploadPartResult)
}

func (r *Replicator) uploadPartExec(remote *backend.Remote, req *apigw.S3Request, body io.ReadCloser, remoteUploadID string, partNum int32) func(context.Context) (interface{}, int64, int64, error) {
	return func(ctx context.Context) (interface{}, int64, int64, error) {
		defer body.Close()
		countingReader := NewCountingReader(body)
		response, err := remote.S3Client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(remote.Config.Bucket),
			Key:        aws.String(req.Key),
			UploadId:   aws.String(remoteUploadID),
			PartNumber: aws.Int32(partNum),
			Body:       countingReader,
		})
		return response, countingReader.Count(), 0, err
	}
}

// recordPartResults отражает в метриках результат доставки одной части на
// каждый remote из fan-out'а.
func (r *Replicator) recordPartResults(results []backend.Result) {
	if r.metrics == nil {
		return
	}
	for _, res := range results {
		result := "success"
		if res.Err != nil || res.Unreachable {
			result = "failure"
		}
		r.metrics.MultipartPartsUploadedTotal.WithLabelValues(result).Inc()
	}
}

func convertUploadPartResult(res backend.Result) *apigw.S3Response {
	headers := make(http.Header)
	if out, ok := res.Response.(*s3.UploadPartOutput); ok && out.ETag != nil {
		headers.Set("ETag", *out.ETag)
	}
	return &apigw.S3Response{StatusCode: http.StatusOK, Headers: headers}
}

// persistStatusUpdate применяет cancelPredicate к каждому результату fan-out'а,
// помечая соответствующую запись Cancelled в локальной копии сессии, и пишет
// обновленный набор через атомарный find-and-update
func (r *Replicator) persistStatusUpdate(session *metadatastore.MultipartSession, results []backend.Result, cancelPredicate func(backend.Result) bool) {
	cancelled := make(map[string]bool)
	for _, res := range results {
		if cancelPredicate(res) {
			cancelled[res.RemoteName] = true
		}
	}
	if len(cancelled) == 0 {
		return
	}

	updated := make([]metadatastore.RemoteUploadID, len(session.UploadIDs))
	copy(updated, session.UploadIDs)
	for i, entry := range updated {
		if entry.Status == metadatastore.StatusOpen && cancelled[entry.RemoteName] {
			updated[i].Status = metadatastore.StatusCancelled
		}
	}

	if _, err := r.store.UpdateMultipartStatuses(session.ID, updated); err != nil {
		logger.Error("persistStatusUpdate: failed to persist session %s: %v", session.ID, err)
		return
	}
	session.UploadIDs = updated
}

// completeMultipartUploadRequestXML - тело запроса CompleteMultipartUpload,
// список частей, как их видит клиент
type completeMultipartUploadRequestXML struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []struct {
		PartNumber int32  `xml:"PartNumber"`
		ETag       string `xml:"ETag"`
	} `xml:"Part"`
}

// CompleteMultipartUpload завершает upload на всех выживших Open remote. Любой
// отказ (транспортный или протокольный) на этом терминальном шаге переводит
// соответствующую запись в Cancelled - в отличие от UploadPart, здесь нет
// следующей попытки для этого remote.
func (r *Replicator) CompleteMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	uploadID := req.Query.Get("uploadId")
	opCtx := newOperationContext(ctx, "COMPLETE_MULTIPART_UPLOAD", req.Bucket, req.Key)

	session, errResp := r.loadOpenSession(uploadID)
	if errResp != nil {
		return errResp
	}

	targets := r.resolveTargetsForSession(session)
	if len(targets) == 0 {
		logger.Warn("CompleteMultipartUpload: no live remotes remain open for session %s", session.ID)
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available for this multipart session")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return r.createErrorResponse(http.StatusBadRequest, "MalformedXML", "Failed to read request body")
	}
	var parsed completeMultipartUploadRequestXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return r.createErrorResponse(http.StatusBadRequest, "MalformedXML", "Failed to parse complete request body")
	}
	completedParts := make([]types.CompletedPart, 0, len(parsed.Parts))
	for _, p := range parsed.Parts {
		completedParts = append(completedParts, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	calls := make([]remoteCall, len(targets))
	for i, remote := range targets {
		remoteUploadID, _ := uploadIDForRemote(session, remote.Name)
		calls[i] = remoteCall{remote: remote, exec: r.completeExec(remote, req, remoteUploadID, completedParts)}
	}

	results := r.dispatch(opCtx.ctx, "CompleteMultipartUpload", r.config.PutConcurrency, calls)

	// На терминальном шаге любой отказ - транспортный или протокольный - вычеркивает remote.
	r.persistStatusUpdate(session, results, func(res backend.Result) bool { return res.Err != nil || res.Unreachable })

	allOpen := true
	for _, entry := range session.UploadIDs {
		if entry.Status != metadatastore.StatusOpen {
			allOpen = false
			break
		}
	}

	if allOpen {
		if err := r.store.MarkMultipartComplete(session.ID); err != nil {
			logger.Error("CompleteMultipartUpload: failed to mark session %s complete: %v", session.ID, err)
			return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "Failed to persist completion")
		}
		logger.Info("CompleteMultipartUpload: session %s completed, all remotes consistent", session.ID)
		r.recordUploadClosed()
		return convertCompleteResult(results, req)
	}

	// Не все remote согласились завершить - откатываем оставшиеся Open записи,
	// чтобы не оставить материализованный, но неанонсированный объект
	logger.Error("CompleteMultipartUpload: session %s inconsistent after complete, aborting remaining open remotes", session.ID)
	r.abortRemainingOpen(opCtx.ctx, session, req)

	if err := r.store.MarkMultipartAborted(session.ID); err != nil {
		logger.Error("CompleteMultipartUpload: failed to mark session %s aborted: %v", session.ID, err)
	}
	r.recordUploadClosed()
	return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "Multipart upload could not be completed consistently across all remotes")
}

// recordUploadClosed уменьшает счетчик открытых multipart-сессий при переходе
// сессии в терминальное состояние (Complete или Abort).
func (r *Replicator) recordUploadClosed() {
	if r.metrics == nil {
		return
	}
	r.metrics.MultipartActiveUploads.Dec()
}

func (r *Replicator) completeExec(remote *backend.Remote, req *apigw.S3Request, remoteUploadID string, parts []types.CompletedPart) func(context.Context) (interface{}, int64, int64, error) {
	return func(ctx context.Context) (interface{}, int64, int64, error) {
		response, err := remote.S3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(remote.Config.Bucket),
			Key:             aws.String(req.Key),
			UploadId:        aws.String(remoteUploadID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		return response, 0, 0, err
	}
}

// convertCompleteResult выбирает произвольный успешный результат (все согласованы,
// это гарантируется вызывающим кодом) и строит клиентский XML-ответ
func convertCompleteResult(results []backend.Result, req *apigw.S3Request) *apigw.S3Response {
	var chosen *s3.CompleteMultipartUploadOutput
	for _, res := range results {
		if out, ok := res.Response.(*s3.CompleteMultipartUploadOutput); ok {
			chosen = out
			break
		}
	}

	headers := make(http.Header)
	if chosen != nil && chosen.ETag != nil {
		headers.Set("ETag", *chosen.ETag)
	}
	if chosen != nil && chosen.VersionId != nil {
		headers.Set("x-amz-version-id", *chosen.VersionId)
	}

	var etag, location, bucket string
	if chosen != nil {
		etag = aws.ToString(chosen.ETag)
		location = aws.ToString(chosen.Location)
		bucket = aws.ToString(chosen.Bucket)
	}
	if bucket == "" {
		bucket = req.Bucket
	}

	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUploadResult>
    <Location>%s</Location>
    <Bucket>%s</Bucket>
    <Key>%s</Key>
    <ETag>%s</ETag>
</CompleteMultipartUploadResult>`, location, bucket, req.Key, etag)

	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(body)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// abortRemainingOpen рассылает Abort на всё ещё Open записи после неудачного
// Complete
func (r *Replicator) abortRemainingOpen(ctx context.Context, session *metadatastore.MultipartSession, req *apigw.S3Request) {
	targets := r.resolveTargetsForSession(session)
	if len(targets) == 0 {
		return
	}

	calls := make([]remoteCall, len(targets))
	for i, remote := range targets {
		remoteUploadID, _ := uploadIDForRemote(session, remote.Name)
		calls[i] = remoteCall{remote: remote, exec: r.abortExec(remote, req, remoteUploadID)}
	}

	r.dispatch(ctx, "AbortMultipartUpload", r.config.DeleteConcurrency, calls)
}

// AbortMultipartUpload отменяет upload на всех Open remote и помечает сессию
// терминальной. Идемпотентен: повторный abort уже терминальной сессии - успех
// без повторной рассылки.
func (r *Replicator) AbortMultipartUpload(ctx context.Context, req *apigw.S3Request) *apigw.S3Response {
	uploadID := req.Query.Get("uploadId")

	session, err := r.store.GetMultipartSession(uploadID)
	if err != nil {
		// Несуществующая сессия - считаем abort успешным
		return &apigw.S3Response{StatusCode: http.StatusNoContent}
	}
	if session.IsTerminal() {
		return &apigw.S3Response{StatusCode: http.StatusNoContent}
	}

	r.abortRemainingOpen(ctx, session, req)

	if err := r.store.MarkMultipartAborted(session.ID); err != nil {
		logger.Error("AbortMultipartUpload: failed to mark session %s aborted: %v", session.ID, err)
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "Failed to persist abort")
	}
	r.recordUploadClosed()

	return &apigw.S3Response{StatusCode: http.StatusNoContent}
}

func (r *Replicator) abortExec(remote *backend.Remote, req *apigw.S3Request, remoteUploadID string) func(context.Context) (interface{}, int64, int64, error) {
	return func(ctx context.Context) (interface{}, int64, int64, error) {
		response, err := remote.S3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(remote.Config.Bucket),
			Key:      aws.String(req.Key),
			UploadId: aws.String(remoteUploadID),
		})
		return response, 0, 0, err
	}
}
