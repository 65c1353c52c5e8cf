package backend

import (
	"context"
	"time"
)

// actorRequest - тегированное сообщение почтового ящика. exec выполняет
// конкретную S3 операцию на клиенте этого remote; op - имя операции для логов/метрик.
type actorRequest struct {
	op    string
	exec  func(ctx context.Context) (response interface{}, bytesWritten, bytesRead int64, err error)
	reply chan Result
}

// actorWorkers - размер пула горутин, разбирающих почтовый ящик одного remote.
// Сообщения независимы друг от друга, поэтому обработка не обязана быть
// последовательной.
const actorWorkers = 4

// mailboxCapacity - буфер почтового ящика; send блокируется сверх этого, что и
// создает естественный backpressure на конкурентные fan-out вызовы.
const mailboxCapacity = 64

// startActor запускает пул горутин, разбирающих почтовый ящик remote.
// Вызывается один раз при создании Remote и живет всё время жизни процесса.
func (r *Remote) startActor() {
	r.mailbox = make(chan actorRequest, mailboxCapacity)
	for i := 0; i < actorWorkers; i++ {
		go r.actorLoop()
	}
}

func (r *Remote) actorLoop() {
	for req := range r.mailbox {
		start := time.Now()
		response, written, read, err := req.exec(context.Background())

		result := Result{
			RemoteName:   r.Name,
			Method:       req.op,
			Response:     response,
			Duration:     time.Since(start),
			BytesWritten: written,
			BytesRead:    read,
		}

		if err != nil {
			if isUnreachable(err) {
				result.Unreachable = true
				result.Err = err
			} else {
				pe := convertSDKError(err)
				result.Err = pe
				result.StatusCode = pe.StatusCode
			}
		} else {
			result.StatusCode = 200
		}

		req.reply <- result
	}
}

// Submit отправляет операцию в почтовый ящик remote и ждет ответа либо отмены ctx.
// Это единственная точка входа для Fan-out Coordinator и Read Router: оба всегда
// идут через Submit, независимо от состояния circuit breaker - брейкер не
// является гейтом на пути запроса, только сигналом для мониторинга.
func (r *Remote) Submit(ctx context.Context, op string, exec func(ctx context.Context) (interface{}, int64, int64, error)) Result {
	reply := make(chan Result, 1)
	req := actorRequest{op: op, exec: exec, reply: reply}

	select {
	case r.mailbox <- req:
	case <-ctx.Done():
		return Result{RemoteName: r.Name, Method: op, Unreachable: true, Err: ctx.Err()}
	}

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return Result{RemoteName: r.Name, Method: op, Unreachable: true, Err: ctx.Err()}
	}
}
