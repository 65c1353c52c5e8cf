package apigw

import "time"

// Config содержит конфигурацию для API Gateway
type Config struct {
	// ListenAddress - адрес и порт для прослушивания (например, ":9000")
	ListenAddress string

	// TLSCertFile - путь к файлу SSL-сертификата (опционально, для включения HTTPS)
	TLSCertFile string

	// TLSKeyFile - путь к файлу приватного ключа SSL (опционально)
	TLSKeyFile string

	// ReadTimeout - таймаут на чтение всего запроса, включая тело
	ReadTimeout time.Duration

	// WriteTimeout - таймаут на запись всего ответа
	WriteTimeout time.Duration

	// MaxRequestBodyBytes ограничивает тело входящего запроса (0 = без
	// ограничения). Fan-out рассылает одно тело на все remote-ы через
	// multiplier - лимит здесь дешевле, чем обнаруживать переполнение уже
	// после того, как запись ушла на несколько backend-ов.
	MaxRequestBodyBytes int64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddress:       ":9000",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		MaxRequestBodyBytes: 5 * 1024 * 1024 * 1024, // 5 GiB - потолок одного S3 PutObject
	}
}
