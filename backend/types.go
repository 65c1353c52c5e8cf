package backend

import (
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RemoteState представляет состояние удаленного хранилища (circuit breaker)
type RemoteState string

const (
	StateUp      RemoteState = "UP"      // Remote полностью работоспособен
	StateDown    RemoteState = "DOWN"    // Remote недоступен
	StateProbing RemoteState = "PROBING" // Промежуточное состояние - проверка восстановления
)

// String возвращает строковое представление состояния
func (s RemoteState) String() string {
	return string(s)
}

// ToFloat64 возвращает числовое представление состояния для метрик Prometheus
func (s RemoteState) ToFloat64() float64 {
	switch s {
	case StateUp:
		return 1.0
	case StateProbing:
		return 0.5
	case StateDown:
		return 0.0
	default:
		return 0.0
	}
}

// RemoteConfig содержит конфигурацию одного remote из YAML
type RemoteConfig struct {
	Name        string    `yaml:"name"`         // Уникальное имя remote
	Priority    uint      `yaml:"priority"`      // Чем выше, тем предпочтительнее при чтении
	ReadRequest *bool     `yaml:"read_request"` // Допустим ли remote к чтению первого эшелона; default true
	S3          S3Config  `yaml:"s3"`
}

// S3Config содержит учетные данные для подключения к конкретному remote
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Remote - неизменяемый дескриптор удаленного S3-хранилища плюс его почтовый ящик.
// Priority и ReadRequest неизменны на всё время жизни процесса; mailbox - единственная
// точка входа для сериализованного доступа к S3-клиенту этого remote (см. Actor в actor.go).
type Remote struct {
	Name        string
	Priority    uint
	ReadRequest bool

	Config             S3Config
	S3Client           *s3.Client
	StreamingPutClient *s3.Client

	mailbox chan actorRequest

	// Внутреннее состояние circuit breaker, защищенное мьютексом.
	mu                   sync.RWMutex
	state                RemoteState
	lastError            error
	lastCheckTime        time.Time
	consecutiveFailures  int
	consecutiveSuccesses int

	recentFailures int
	windowStart    time.Time
}

// Result - результат выполнения одной операции на одном remote.
// Unreachable=true означает транспортную ошибку ("без ответа"); в этом случае
// Err не содержит протокольной S3-ошибки - это отдельный канал сигнала.
type Result struct {
	RemoteName   string
	Method       string
	Response     interface{}
	StatusCode   int
	Err          error
	Unreachable  bool
	Duration     time.Duration
	BytesWritten int64
	BytesRead    int64
}

// GetState возвращает текущее состояние remote (потокобезопасно)
func (r *Remote) GetState() RemoteState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// GetLastError возвращает последнюю ошибку (потокобезопасно)
func (r *Remote) GetLastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// GetLastCheckTime возвращает время последней проверки (потокобезопасно)
func (r *Remote) GetLastCheckTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCheckTime
}

// GetStats возвращает статистику remote (потокобезопасно)
func (r *Remote) GetStats() (consecutiveFailures, consecutiveSuccesses, recentFailures int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.consecutiveFailures, r.consecutiveSuccesses, r.recentFailures
}

// Provider - интерфейс для получения информации о remotes и репортинга их здоровья.
type Provider interface {
	// GetLiveRemotes возвращает remotes в состоянии UP (PROBING и DOWN не входят)
	GetLiveRemotes() []*Remote

	// GetAllRemotes возвращает все сконфигурированные remotes, независимо от состояния.
	// Read Router и Fan-out Coordinator используют этот список: circuit breaker - это
	// сигнал для мониторинга, а не фильтр на пути запроса.
	GetAllRemotes() []*Remote

	// GetRemote возвращает remote по имени
	GetRemote(name string) (*Remote, bool)

	ReportSuccess(remoteName string)
	ReportFailure(remoteName string, err error)

	Start() error
	Stop() error
	IsRunning() bool
}
