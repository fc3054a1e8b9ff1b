package dutests

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/launchdarkly/httpd-contract-tests/logging"
	"github.com/launchdarkly/httpd-contract-tests/session"
)

const (
	adderPath          = "/adder"
	adderPipelineDepth = 3
)

// adderResult is what one simulated client saw.
type adderResult struct {
	Index    int
	ID       int
	Statuses []int
	Bodies   []string
	Err      error
}

// expectedBodies returns the running totals the device should report: id, 2*id, 3*id.
func (r adderResult) expectedBodies() []string {
	ret := make([]string, adderPipelineDepth)
	for i := range ret {
		ret[i] = strconv.Itoa(r.ID * (i + 1))
	}
	return ret
}

// adderWorkerID gives each worker a distinct, nonzero multiplier.
func adderWorkerID(index int) int {
	return 2 * (index + 1)
}

// runAdderWorkers runs one simulated client per session the device supports. All sessions are
// opened before any of them sends a request, so the device has to hold every connection's
// context at the same time. It returns when every worker has finished, with results in worker
// order.
func runAdderWorkers(ctx context.Context, config Config, logger logging.Logger) []adderResult {
	results := make([]adderResult, config.MaxSessions)
	start := make(chan struct{})
	var connected, finished sync.WaitGroup

	for i := range results {
		connected.Add(1)
		finished.Add(1)
		go func(index int) {
			defer finished.Done()
			results[index] = runAdderWorker(ctx, config, index, logger, connected.Done, start)
		}(i)
	}

	connected.Wait()
	close(start)
	finished.Wait()
	return results
}

func runAdderWorker(
	ctx context.Context,
	config Config,
	index int,
	logger logging.Logger,
	onConnected func(),
	start <-chan struct{},
) (result adderResult) {
	result = adderResult{Index: index, ID: adderWorkerID(index)}
	workerLogger := logging.WithPrefix(logger, fmt.Sprintf("session %d: ", index))

	var connectedOnce sync.Once
	signalConnected := func() { connectedOnce.Do(onConnected) }
	defer signalConnected()
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("unexpected panic in session %d: %+v\n%s", index, r, string(debug.Stack()))
		}
	}()

	s, err := session.Connect(ctx, config.Host, config.Port, session.Options{
		ReadTimeout: config.ReadTimeout(),
		Logger:      workerLogger,
	})
	signalConnected()
	if err != nil {
		result.Err = err
		return result
	}
	defer s.Close()
	<-start

	body := []byte(strconv.Itoa(result.ID))
	for i := 0; i < adderPipelineDepth; i++ {
		if i > 0 && config.PipelineDelay() > 0 {
			time.Sleep(config.PipelineDelay())
		}
		if err := s.SendPost(adderPath, body); err != nil {
			result.Err = err
			return result
		}
	}

	for i := 0; i < adderPipelineDepth; i++ {
		resp, err := s.ReadResponse()
		if err != nil {
			result.Err = fmt.Errorf("response %d: %w", i+1, err)
			return result
		}
		result.Statuses = append(result.Statuses, resp.StatusCode)
		result.Bodies = append(result.Bodies, string(resp.Body))
	}
	return result
}
