package replicator

import "fmt"

// Config содержит конфигурацию Fan-out Coordinator и Multipart Coordinator
type Config struct {
	// PutConcurrency - верхняя граница одновременных per-remote вызовов для
	// PUT-класса операций (PutObject, UploadPart, CreateMultipartUpload, CompleteMultipartUpload)
	PutConcurrency int `yaml:"put_concurrency"`

	// DeleteConcurrency - верхняя граница одновременных per-remote вызовов для
	// delete-класса операций (DeleteObject, DeleteObjects)
	DeleteConcurrency int `yaml:"delete_concurrency"`

	// StrictMode переключает политику несогласованности fan-out'а в строгий режим:
	// смешанный результат трактуется как отказ всей операции, а не как успех с логом
	StrictMode bool `yaml:"strict_mode"`

	// OperationTimeout читается из конфигурации, но не применяется: per-remote
	// вызов ограничен только контекстом запроса и таймаутами S3-клиента
	OperationTimeout string `yaml:"operation_timeout"`

	// RetryAttempts проверяется в Validate (не может быть отрицательным), но не
	// применяется: dispatch выполняет каждый per-remote вызов один раз, без повторов
	RetryAttempts int `yaml:"retry_attempts"`
}

// DefaultConfig возвращает конфигурацию fan-out'а по умолчанию
func DefaultConfig() *Config {
	return &Config{
		PutConcurrency:    8,
		DeleteConcurrency: 4,
		StrictMode:        false,
		RetryAttempts:     0,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.PutConcurrency <= 0 {
		return fmt.Errorf("replicator.put_concurrency must be positive")
	}
	if c.DeleteConcurrency <= 0 {
		return fmt.Errorf("replicator.delete_concurrency must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("replicator.retry_attempts must be non-negative")
	}
	return nil
}
