// Package systems holds long lived helpers shared by the tools built on the
// renderer.
package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/vulx/engine/core"
)

// JobTask is a unit of work run on one of the pool's workers.
type JobTask struct {
	Name string
	// Run is required.
	Run func() error
	// OnComplete is called after Run succeeded. Optional.
	OnComplete func()
	// OnFailure is called with Run's error. Optional.
	OnFailure func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup
	pending    sync.WaitGroup

	mu     sync.Mutex
	errs   []error
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	defer js.pending.Done()
	if err := job.Run(); err != nil {
		core.LogError("job %s failed: %s", job.Name, err)
		js.mu.Lock()
		js.errs = append(js.errs, fmt.Errorf("%s: %w", job.Name, err))
		js.mu.Unlock()
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job %q has no entry point", jt.Name)
	}
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return ErrJobSystemClosed
	}
	js.pending.Add(1)
	js.mu.Unlock()
	js.jobQueue <- jt
	return nil
}

/**
 * @brief Waits for every submitted job and returns their joined errors.
 * The collected errors are reset.
 */
func (js *JobSystem) Wait() error {
	js.pending.Wait()
	js.mu.Lock()
	defer js.mu.Unlock()
	err := errors.Join(js.errs...)
	js.errs = nil
	return err
}

/**
 * @brief Shuts the job system down after draining the queue.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	js.mu.Unlock()

	err := js.Wait()
	close(js.jobQueue)
	js.wg.Wait()
	return err
}
