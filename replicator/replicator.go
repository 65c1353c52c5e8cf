// Package replicator реализует Fan-out Coordinator и
// Multipart Coordinator: рассылку операций записи по remote-хранилищам
// с применением политики несогласованности и персистентное отслеживание
// multipart-сессий через metadatastore.Store.
package replicator

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/logger"
	"s3proxy/metadatastore"
	"s3proxy/monitoring"
)

// Replicator реализует операции записи клиент-обращенного S3-протокола,
// рассылая их по remote-хранилищам через backend.Manager.
type Replicator struct {
	remoteManager *backend.Manager
	store         metadatastore.Store
	config        *Config
	metrics       *monitoring.Metrics // nil, если мониторинг отключен
}

// NewReplicator создает новый Fan-out/Multipart Coordinator
func NewReplicator(manager *backend.Manager, store metadatastore.Store, config *Config) *Replicator {
	if config == nil {
		config = DefaultConfig()
	}

	logger.Info("Replicator initialized: put_concurrency=%d, delete_concurrency=%d, strict_mode=%t",
		config.PutConcurrency, config.DeleteConcurrency, config.StrictMode)

	return &Replicator{
		remoteManager: manager,
		store:         store,
		config:        config,
	}
}

// SetMetrics подключает глобальный реестр метрик. Вызывается из main после
// старта модуля мониторинга; до вызова (или если мониторинг отключен)
// Replicator работает без метрик - все обновления становятся no-op.
func (r *Replicator) SetMetrics(m *monitoring.Metrics) {
	r.metrics = m
}

// createErrorResponse создает ответ об ошибке в формате S3 XML
func (r *Replicator) createErrorResponse(statusCode int, errorCode, message string) *apigw.S3Response {
	return apigw.NewErrorResponse(statusCode, errorCode, message, "")
}

// createMultipartUploadResponse создает ответ для CreateMultipartUpload
func (r *Replicator) createMultipartUploadResponse(req *apigw.S3Request, uploadID string) *apigw.S3Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<InitiateMultipartUploadResult>
    <Bucket>%s</Bucket>
    <Key>%s</Key>
    <UploadId>%s</UploadId>
</InitiateMultipartUploadResult>`, req.Bucket, req.Key, uploadID)

	headers := make(http.Header)
	headers.Set("Content-Type", "application/xml")
	headers.Set("Content-Length", fmt.Sprintf("%d", len(body)))

	return &apigw.S3Response{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// resolveTargetsForSession возвращает живые remote-объекты, соответствующие
// записям Open из multipart-сессии
func (r *Replicator) resolveTargetsForSession(session *metadatastore.MultipartSession) []*backend.Remote {
	var targets []*backend.Remote
	for _, entry := range session.UploadIDs {
		if entry.Status != metadatastore.StatusOpen {
			continue
		}
		remote, ok := r.remoteManager.GetRemote(entry.RemoteName)
		if !ok {
			continue
		}
		targets = append(targets, remote)
	}
	return targets
}

// uploadIDForRemote ищет upload_id удаленного хранилища по имени remote в сессии
func uploadIDForRemote(session *metadatastore.MultipartSession, remoteName string) (string, bool) {
	for _, entry := range session.UploadIDs {
		if entry.RemoteName == remoteName && entry.Status == metadatastore.StatusOpen {
			return entry.UploadID, true
		}
	}
	return "", false
}
