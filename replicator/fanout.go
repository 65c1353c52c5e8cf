package replicator

import (
	"context"
	"net/http"
	"sync"

	"s3proxy/apigw"
	"s3proxy/backend"
	"s3proxy/logger"
)

// remoteCall - один уже построенный per-remote вызов, готовый к отправке в
// почтовый ящик remote.
type remoteCall struct {
	remote *backend.Remote
	exec   func(ctx context.Context) (response interface{}, bytesWritten, bytesRead int64, err error)
}

// callsFor строит remoteCall для каждого remote из remotes, используя один и
// тот же build (для операций без уникального per-remote состояния, например тела)
func callsFor(remotes []*backend.Remote, build func(remote *backend.Remote) func(ctx context.Context) (interface{}, int64, int64, error)) []remoteCall {
	calls := make([]remoteCall, len(remotes))
	for i, remote := range remotes {
		calls[i] = remoteCall{remote: remote, exec: build(remote)}
	}
	return calls
}

// dispatch рассылает calls с ограничением на одновременное число вызовов
// (concurrency), ждет все ответы и сообщает в Remote Manager метрики и
// здоровье по каждому результату.
func (r *Replicator) dispatch(ctx context.Context, op string, concurrency int, calls []remoteCall) []backend.Result {
	if len(calls) == 0 {
		return nil
	}

	sem := make(chan struct{}, concurrency)
	resultsCh := make(chan backend.Result, len(calls))

	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(c remoteCall) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res := c.remote.Submit(ctx, op, c.exec)
			r.recordResult(res)
			resultsCh <- res
		}(call)
	}

	wg.Wait()
	close(resultsCh)

	results := make([]backend.Result, 0, len(calls))
	for res := range resultsCh {
		results = append(results, res)
	}
	return results
}

// recordResult обновляет метрики и circuit breaker по результату одного remote
func (r *Replicator) recordResult(res backend.Result) {
	r.remoteManager.RecordMetrics(res)

	if res.Err == nil && !res.Unreachable {
		r.remoteManager.ReportSuccess(res.RemoteName)
		return
	}

	err := res.Err
	if err == nil {
		err = errUnreachableNoDetail
	}
	r.remoteManager.ReportFailure(res.RemoteName, err)
}

var errUnreachableNoDetail = &backend.ProtocolError{Code: "InternalError", Message: "remote unreachable"}

// partitionResults делит результаты fan-out'а на успехи и отказы.
// И структурная S3-ошибка, и транспортная недостижимость считаются отказом.
func partitionResults(results []backend.Result) (successes, failures []backend.Result) {
	for _, res := range results {
		if res.Err == nil && !res.Unreachable {
			successes = append(successes, res)
		} else {
			failures = append(failures, res)
		}
	}
	return successes, failures
}

// resolveWrite применяет политику несогласованности к результатам записи
// и строит ответ клиенту. convertSuccess превращает один успешный Result в S3Response.
func (r *Replicator) resolveWrite(results []backend.Result, convertSuccess func(backend.Result) *apigw.S3Response) *apigw.S3Response {
	if len(results) == 0 {
		logger.Warn("fan-out: no remotes available to handle the operation")
		return r.createErrorResponse(http.StatusInternalServerError, "InternalError", "No remotes available to handle the operation")
	}

	successes, failures := partitionResults(results)

	switch {
	case len(failures) == 0:
		logger.Info("fan-out: all %d remotes succeeded", len(successes))
		return convertSuccess(successes[0])

	case len(successes) == 0:
		logger.Info("fan-out: all %d remotes failed", len(failures))
		return r.errorResponseForResult(failures[0])

	case r.config.StrictMode:
		logger.Error("fan-out inconsistent (%d succeeded, %d failed), strict mode rejected", len(successes), len(failures))
		r.logInconsistency(successes, failures)
		r.recordInconsistency(successes[0].Method)
		return r.errorResponseForResult(failures[0])

	default:
		logger.Error("fan-out inconsistent (%d succeeded, %d failed), permissive mode accepts", len(successes), len(failures))
		r.logInconsistency(successes, failures)
		r.recordInconsistency(successes[0].Method)
		return convertSuccess(successes[0])
	}
}

// recordInconsistency отмечает в метриках, что fan-out разошелся между remote-ами.
func (r *Replicator) recordInconsistency(operation string) {
	if r.metrics == nil {
		return
	}
	r.metrics.FanoutInconsistentTotal.WithLabelValues(operation).Inc()
}

func (r *Replicator) logInconsistency(successes, failures []backend.Result) {
	for _, s := range successes {
		logger.Info("  fan-out success: remote=%s method=%s duration=%v", s.RemoteName, s.Method, s.Duration)
	}
	for _, f := range failures {
		logger.Error("  fan-out failure: remote=%s method=%s unreachable=%t err=%v", f.RemoteName, f.Method, f.Unreachable, f.Err)
	}
}

// errorResponseForResult превращает неуспешный Result в S3Response, предпочитая
// протокольную S3-ошибку, если она есть, иначе откатываясь к общей ошибке.
func (r *Replicator) errorResponseForResult(res backend.Result) *apigw.S3Response {
	if pe, ok := res.Err.(*backend.ProtocolError); ok {
		return apigw.NewErrorResponse(pe.StatusCode, pe.Code, pe.Message, pe.RequestID)
	}
	if res.Unreachable {
		return r.createErrorResponse(http.StatusServiceUnavailable, "ServiceUnavailable", "Remote did not respond")
	}
	message := "Unknown error"
	if res.Err != nil {
		message = res.Err.Error()
	}
	return r.createErrorResponse(http.StatusInternalServerError, "InternalError", message)
}
