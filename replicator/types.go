package replicator

import (
	"context"
	"io"
	"time"
)

// CountingReader оборачивает io.Reader и считает прочитанные байты
type CountingReader struct {
	reader io.Reader
	count  int64
}

// NewCountingReader создает новый CountingReader
func NewCountingReader(reader io.Reader) *CountingReader {
	return &CountingReader{reader: reader}
}

// Read реализует io.Reader и считает байты
func (cr *CountingReader) Read(p []byte) (n int, err error) {
	n, err = cr.reader.Read(p)
	cr.count += int64(n)
	return n, err
}

// Count возвращает количество прочитанных байт
func (cr *CountingReader) Count() int64 {
	return cr.count
}

// operationContext описывает один входящий запрос клиента, проходящий через
// Fan-out Coordinator или Multipart Coordinator
type operationContext struct {
	ctx       context.Context
	operation string
	bucket    string
	key       string
	startTime time.Time
}

// newOperationContext создает новый контекст операции
func newOperationContext(ctx context.Context, operation, bucket, key string) *operationContext {
	return &operationContext{
		ctx:       ctx,
		operation: operation,
		bucket:    bucket,
		key:       key,
		startTime: time.Now(),
	}
}

// Duration возвращает время выполнения операции
func (oc *operationContext) Duration() time.Duration {
	return time.Since(oc.startTime)
}
