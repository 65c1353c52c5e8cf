package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"s3proxy/logger"
	"s3proxy/monitoring"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/middleware"
)

// Manager реализует Provider и управляет состоянием всех сконфигурированных remotes
type Manager struct {
	config  ManagerConfig
	order   []string // имена remotes в порядке конфигурации
	remotes map[string]*Remote
	metrics *Metrics

	globalMetrics *monitoring.Metrics // nil, если мониторинг отключен

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager создает новый менеджер remotes и запускает их почтовые ящики
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config for remote manager not provided")
	}

	managerConfig := cfg.Manager
	if managerConfig == (ManagerConfig{}) {
		managerConfig = DefaultManagerConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	manager := &Manager{
		config:   managerConfig,
		remotes:  make(map[string]*Remote),
		metrics:  NewMetrics(),
		stopChan: make(chan struct{}),
	}

	for _, remoteConfig := range cfg.Remotes {
		remote, err := manager.createRemote(remoteConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote '%s': %w", remoteConfig.Name, err)
		}
		manager.remotes[remote.Name] = remote
		manager.order = append(manager.order, remote.Name)
		remote.startActor()
	}

	logger.Info("Remote manager initialized with %d remotes", len(manager.remotes))
	for _, name := range manager.order {
		r := manager.remotes[name]
		logger.Info("  - %s: %s (bucket: %s, priority: %d, read_request: %t)", name, r.Config.Endpoint, r.Config.Bucket, r.Priority, r.ReadRequest)
	}

	return manager, nil
}

// createRemote создает и настраивает один remote
func (m *Manager) createRemote(cfg RemoteConfig) (*Remote, error) {
	awsConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.S3.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for remote %s: %w", cfg.Name, err)
	}

	defaultS3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
	})

	readRequest := true
	if cfg.ReadRequest != nil {
		readRequest = *cfg.ReadRequest
	}
	priority := cfg.Priority
	if priority == 0 {
		priority = 1
	}

	remote := &Remote{
		Name:        cfg.Name,
		Priority:    priority,
		ReadRequest: readRequest,
		Config:      cfg.S3,
		S3Client:    defaultS3Client,
		state:       m.config.InitialState,
		windowStart: time.Now(),
	}

	// Эндпоинты на голом HTTP (чаще всего локальный MinIO) не умеют принимать
	// тело с вычисленным SHA256-чексуммами потокового запроса - используем отдельный
	// клиент без этой middleware, чтобы не буферизовать тело целиком.
	isHTTP := cfg.S3.Endpoint != "" && strings.HasPrefix(strings.ToLower(cfg.S3.Endpoint), "http://")
	if isHTTP {
		logger.Warn("Remote '%s' uses plain HTTP, creating a streaming client for PutObject", cfg.Name)
		streamingS3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.UsePathStyle = true
			if cfg.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			}
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
				return v4.RemoveComputePayloadSHA256Middleware(stack)
			})
		})
		remote.StreamingPutClient = streamingS3Client
	}

	logger.Info("Created remote '%s' (endpoint: %s, bucket: %s) with initial state %s", cfg.Name, cfg.S3.Endpoint, cfg.S3.Bucket, remote.state)
	return remote, nil
}

// Start запускает менеджер remotes (фоновые активные health-check'и)
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("remote manager is already running")
	}

	logger.Info("Starting remote manager...")

	m.wg.Add(1)
	go m.runHealthChecks()

	m.running = true
	logger.Info("Remote manager started")

	return nil
}

// Stop останавливает менеджер remotes
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	logger.Info("Stopping remote manager...")
	close(m.stopChan)
	m.wg.Wait()
	m.stopChan = make(chan struct{})
	m.running = false
	logger.Info("Remote manager stopped")

	return nil
}

// IsRunning возвращает true, если менеджер запущен
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetLiveRemotes возвращает remotes в состоянии UP, в порядке конфигурации
func (m *Manager) GetLiveRemotes() []*Remote {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var live []*Remote
	for _, name := range m.order {
		r := m.remotes[name]
		if r.GetState() == StateUp {
			live = append(live, r)
		}
	}

	logger.Debug("GetLiveRemotes: returning %d out of %d remotes", len(live), len(m.remotes))
	return live
}

// GetAllRemotes возвращает все сконфигурированные remotes, в порядке конфигурации,
// независимо от состояния circuit breaker (см. Provider в types.go)
func (m *Manager) GetAllRemotes() []*Remote {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Remote, 0, len(m.order))
	for _, name := range m.order {
		all = append(all, m.remotes[name])
	}
	return all
}

// GetRemote возвращает remote по имени
func (m *Manager) GetRemote(name string) (*Remote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.remotes[name]
	return r, exists
}

// isBenignError классифицирует ошибку как не указывающую на реальную проблему с remote
func isBenignError(err error) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var notFoundError *types.NotFound
	if errors.As(err, &notFoundError) {
		return true
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		if httpErr.HTTPStatusCode() == http.StatusNotFound {
			return true
		}
	}

	return false
}

// ReportSuccess сообщает об успешной операции и возвращает remote из DOWN при необходимости
func (m *Manager) ReportSuccess(remoteName string) {
	m.mu.RLock()
	remote, exists := m.remotes[remoteName]
	m.mu.RUnlock()

	if !exists {
		logger.Warn("ReportSuccess: remote '%s' not found", remoteName)
		return
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()

	remote.consecutiveFailures = 0
	remote.consecutiveSuccesses++
	remote.recentFailures = 0

	if remote.state == StateDown {
		logger.Info("Remote '%s' is back online after a successful request.", remoteName)
		setRemoteState(m, remote, StateUp)
	}

	logger.Debug("ReportSuccess: remote '%s', consecutive successes: %d", remoteName, remote.consecutiveSuccesses)
}

// ReportFailure сообщает о неудачной операции, учитывая тип ошибки
func (m *Manager) ReportFailure(remoteName string, err error) {
	m.mu.RLock()
	remote, exists := m.remotes[remoteName]
	m.mu.RUnlock()

	if !exists {
		logger.Warn("ReportFailure: remote '%s' not found", remoteName)
		return
	}

	if isBenignError(err) {
		logger.Debug("ReportFailure: benign error on remote '%s', not affecting circuit breaker: %v", remoteName, err)
		return
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()

	remote.consecutiveSuccesses = 0
	remote.consecutiveFailures++
	remote.lastError = err

	now := time.Now()
	if now.Sub(remote.windowStart) > m.config.CircuitBreakerWindow {
		remote.recentFailures = 1
		remote.windowStart = now
	} else {
		remote.recentFailures++
	}

	logger.Warn("ReportFailure: critical failure on remote '%s', consecutive: %d, recent: %d: %v",
		remoteName, remote.consecutiveFailures, remote.recentFailures, err)

	if remote.state != StateDown && remote.recentFailures >= m.config.CircuitBreakerThreshold {
		logger.Error("Circuit breaker triggered for remote '%s': %d failures in %v. Setting state to DOWN.",
			remoteName, remote.recentFailures, now.Sub(remote.windowStart))
		setRemoteState(m, remote, StateDown)
	}
}

// RecordMetrics записывает латентность/объем одной операции remote. Вызывается
// компонентами C/D/E после получения Result из Submit, отдельно от ReportSuccess/Failure,
// потому что метрики нужны даже для "безопасных" ошибок.
func (m *Manager) RecordMetrics(res Result) {
	m.metrics.RemoteRequestsTotal.WithLabelValues(res.RemoteName, res.Method, strconv.Itoa(res.StatusCode)).Inc()
	m.metrics.RemoteLatency.WithLabelValues(res.RemoteName, res.Method).Observe(res.Duration.Seconds())
	m.metrics.RemoteBytesRead.WithLabelValues(res.RemoteName).Add(float64(res.BytesRead))
	m.metrics.RemoteBytesWrite.WithLabelValues(res.RemoteName).Add(float64(res.BytesWritten))
}

// runHealthChecks выполняет активные проверки здоровья в фоновом режиме
func (m *Manager) runHealthChecks() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	logger.Debug("Doing initial health check")
	m.performHealthChecks()

	logger.Debug("Health check routine started with interval %v", m.config.HealthCheckInterval)
	for {
		select {
		case <-ticker.C:
			m.performHealthChecks()
		case <-m.stopChan:
			logger.Debug("Health check routine stopped")
			return
		}
	}
}

// performHealthChecks выполняет проверку всех remotes
func (m *Manager) performHealthChecks() {
	m.mu.RLock()
	remotes := make([]*Remote, 0, len(m.remotes))
	for _, r := range m.remotes {
		remotes = append(remotes, r)
	}
	m.mu.RUnlock()

	logger.Debug("Performing health checks for %d remotes", len(remotes))

	var wg sync.WaitGroup
	for _, r := range remotes {
		wg.Add(1)
		go func(remote *Remote) {
			defer wg.Done()
			m.checkRemote(remote)
		}(r)
	}

	wg.Wait()
	logger.Debug("Health checks completed")
}

// checkRemote выполняет проверку одного remote
func (m *Manager) checkRemote(remote *Remote) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.CheckTimeout)
	defer cancel()

	logger.Debug("Checking remote %s (state: %s)", remote.Name, remote.GetState())

	_, err := remote.S3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(remote.Config.Bucket),
	})

	remote.mu.Lock()
	defer remote.mu.Unlock()

	remote.lastCheckTime = time.Now()
	oldState := remote.state

	if err != nil {
		remote.lastError = err
		remote.consecutiveSuccesses = 0
		remote.consecutiveFailures++

		logger.Debug("Remote %s health check failed: %v (consecutive failures: %d)", remote.Name, err, remote.consecutiveFailures)

		switch remote.state {
		case StateUp:
			if remote.consecutiveFailures >= m.config.FailureThreshold {
				setRemoteState(m, remote, StateDown)
				logger.Warn("Remote %s transitioned from UP to DOWN after %d consecutive failures", remote.Name, remote.consecutiveFailures)
			}
		case StateProbing:
			setRemoteState(m, remote, StateDown)
			logger.Warn("Remote %s transitioned from PROBING to DOWN after health check failure", remote.Name)
		case StateDown:
		}
	} else {
		remote.lastError = nil
		remote.consecutiveFailures = 0
		remote.consecutiveSuccesses++

		logger.Debug("Remote %s health check succeeded (consecutive successes: %d)", remote.Name, remote.consecutiveSuccesses)

		switch remote.state {
		case StateDown:
			setRemoteState(m, remote, StateProbing)
			logger.Info("Remote %s transitioned from DOWN to PROBING after successful health check", remote.Name)
		case StateProbing:
			if remote.consecutiveSuccesses >= m.config.SuccessThreshold {
				setRemoteState(m, remote, StateUp)
				logger.Info("Remote %s transitioned from PROBING to UP after %d consecutive successes", remote.Name, remote.consecutiveSuccesses)
			}
		case StateUp:
		}
	}

	if oldState != remote.state {
		logger.Info("Remote %s state changed: %s -> %s", remote.Name, oldState, remote.state)
	}
}

func setRemoteState(m *Manager, remote *Remote, state RemoteState) {
	remote.state = state
	m.metrics.RemoteState.WithLabelValues(remote.Name).Set(remote.state.ToFloat64())
	// remote.mu уже захвачен вызывающей стороной - не перезахватываем его повторно.
	m.recordOpenBreakers(remote, state)
}

// SetGlobalMetrics подключает общий реестр метрик мониторинга. Вызывается из
// main после старта модуля мониторинга; до вызова агрегированный гейдж
// разомкнутых брейкеров просто не обновляется.
func (m *Manager) SetGlobalMetrics(gm *monitoring.Metrics) {
	m.mu.Lock()
	m.globalMetrics = gm
	m.mu.Unlock()
	m.recordOpenBreakers(nil, StateUp)
}

// recordOpenBreakers пересчитывает количество remote-ов с разомкнутым (DOWN)
// брейкером и публикует его в агрегированный гейдж мониторинга. current/state -
// remote, чей mu уже захвачен вызывающей стороной (setRemoteState), и его новое
// состояние; для него блокировка не берется повторно, чтобы не словить deadlock
// на невозвратном sync.RWMutex.
func (m *Manager) recordOpenBreakers(current *Remote, currentState RemoteState) {
	m.mu.RLock()
	gm := m.globalMetrics
	remotes := make([]*Remote, 0, len(m.remotes))
	for _, r := range m.remotes {
		remotes = append(remotes, r)
	}
	m.mu.RUnlock()

	if gm == nil {
		return
	}

	open := 0
	for _, r := range remotes {
		if r == current {
			if currentState == StateDown {
				open++
			}
			continue
		}
		r.mu.RLock()
		if r.state == StateDown {
			open++
		}
		r.mu.RUnlock()
	}
	gm.CircuitBreakerOpenRemotes.Set(float64(open))
}
