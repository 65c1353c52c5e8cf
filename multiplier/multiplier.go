// Package multiplier реализует примитив дублирования потокового тела запроса
// без полной буферизации в памяти. Один источник,
// K независимых потребителей; скорость чтения источника ограничена самым
// медленным ЖИВЫМ потребителем, а отвалившийся потребитель не стопорит остальных.
package multiplier

import (
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const chunkSize = 32 * 1024

// activeConsumers - гейдж живых derived-читателей, зарегистрированных во всех
// мультипликаторах процесса. nil, пока мониторинг не подключен через SetActiveConsumersGauge.
var activeConsumers prometheus.Gauge

// SetActiveConsumersGauge подключает гейдж мониторинга, который будет
// отражать количество живых derived-хендлов. Вызывается один раз при старте
// процесса; без вызова пакет работает как прежде, без учета метрик.
func SetActiveConsumersGauge(g prometheus.Gauge) {
	activeConsumers = g
}

// Multiplier - single-producer / K-consumer дубликатор байтового потока.
type Multiplier struct {
	source io.Reader

	mu     sync.Mutex
	closed bool // Close() вызван - больше Derive() не допускается
	live   map[*derivedReader]struct{}
	total  int

	producerStarted bool
	doneCh          chan struct{}
	doneOnce        sync.Once
	pending         int // количество еще не закрытых derived-хендлов
}

// New создает мультипликатор над source. Чтение source не начинается, пока не
// будет вызван Close() - это гарантирует, что все Derive() успеют
// зарегистрироваться прежде, чем какой-либо потребитель вырвется вперед.
func New(source io.Reader) *Multiplier {
	return &Multiplier{
		source: source,
		live:   make(map[*derivedReader]struct{}),
		doneCh: make(chan struct{}),
	}
}

// Derive регистрирует еще одного потребителя. Должен вызываться до Close().
func (m *Multiplier) Derive() io.ReadCloser {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &derivedReader{
		m:    m,
		ch:   make(chan []byte, 1),
		err:  make(chan error, 1),
		dead: make(chan struct{}),
	}
	m.live[d] = struct{}{}
	m.total++
	m.pending++
	if activeConsumers != nil {
		activeConsumers.Inc()
	}
	return d
}

// Close фиксирует набор потребителей и запускает чтение источника.
// Если к этому моменту ни один Derive() не был вызван, источник не читается
// вовсе (буферизация не выполняется) и Done() срабатывает немедленно.
func (m *Multiplier) Close() {
	m.mu.Lock()
	closedAlready := m.closed
	m.closed = true
	startProducer := m.total > 0 && !m.producerStarted
	if startProducer {
		m.producerStarted = true
	}
	noConsumers := m.total == 0
	m.mu.Unlock()

	if closedAlready {
		return
	}

	if noConsumers {
		m.signalDone()
		return
	}

	if startProducer {
		go m.run()
	}
}

// Done возвращает канал, который закрывается, когда все выданные хендлы
// полностью закрыты - по нему originator узнает, что можно освободить источник.
func (m *Multiplier) Done() <-chan struct{} {
	return m.doneCh
}

func (m *Multiplier) signalDone() {
	m.doneOnce.Do(func() { close(m.doneCh) })
}

// run читает источник один раз и рассылает каждый чанк всем живым потребителям.
// Рассылка блокируется на min() по живым потребителям - в этом и есть backpressure.
func (m *Multiplier) run() {
	buf := make([]byte, chunkSize)
	for {
		n, err := m.source.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.broadcast(chunk, nil)
		}
		if err != nil {
			m.broadcast(nil, err)
			return
		}
	}
}

// broadcast доставляет один чанк (или терминальную ошибку/EOF) каждому живому
// потребителю. Потребитель, успевший отвалиться (его dead закрыт), пропускается -
// это и есть изоляция медленного/мертвого потребителя (testable property 7).
func (m *Multiplier) broadcast(chunk []byte, err error) {
	m.mu.Lock()
	recipients := make([]*derivedReader, 0, len(m.live))
	for d := range m.live {
		recipients = append(recipients, d)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range recipients {
		wg.Add(1)
		go func(d *derivedReader) {
			defer wg.Done()
			if err != nil {
				select {
				case d.err <- err:
				case <-d.dead:
				}
				return
			}
			select {
			case d.ch <- chunk:
			case <-d.dead:
			}
		}(d)
	}
	wg.Wait()
}

// removeLive снимает потребителя с backpressure-учета - вызывается когда
// потребитель отваливается до EOF (Close() до прочтения всего потока).
func (m *Multiplier) removeLive(d *derivedReader) {
	m.mu.Lock()
	delete(m.live, d)
	m.mu.Unlock()
}

// handleClosed уменьшает счетчик незакрытых хендлов; когда он доходит до нуля,
// срабатывает Done().
func (m *Multiplier) handleClosed() {
	m.mu.Lock()
	m.pending--
	done := m.pending == 0
	m.mu.Unlock()

	if done {
		m.signalDone()
	}
}

// derivedReader - один из K независимых хендлов, выданных Derive().
type derivedReader struct {
	m    *Multiplier
	ch   chan []byte
	err  chan error
	dead chan struct{}

	buf       []byte
	closeOnce sync.Once
	gotErr    error
	eof       bool
}

// Read реализует io.Reader, буферизуя частично потребленные чанки между вызовами.
func (d *derivedReader) Read(p []byte) (int, error) {
	if d.eof {
		if d.gotErr != nil && d.gotErr != io.EOF {
			return 0, d.gotErr
		}
		return 0, io.EOF
	}

	for len(d.buf) == 0 {
		select {
		case chunk := <-d.ch:
			d.buf = chunk
		case readErr := <-d.err:
			d.eof = true
			d.gotErr = readErr
			if readErr != io.EOF {
				return 0, readErr
			}
			return 0, io.EOF
		}
	}

	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

// Close отмечает хендл отработанным - будь то после EOF или досрочно (слот
// медленного/упавшего потребителя), как того требует.B. Идемпотентен.
func (d *derivedReader) Close() error {
	d.closeOnce.Do(func() {
		close(d.dead)
		d.m.removeLive(d)
		d.m.handleClosed()
		if activeConsumers != nil {
			activeConsumers.Dec()
		}
	})
	return nil
}
