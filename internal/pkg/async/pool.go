// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Results holds the outcome of every task by name.
type Results map[string]Result

// FirstError returns the error of the first failed task, in the given
// order. Tasks missing from the results count as cancelled.
func (r Results) FirstError(order ...string) error {
	for _, name := range order {
		res, ok := r[name]
		if !ok {
			return fmt.Errorf("task %s did not run: %w", name, context.Canceled)
		}
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Errors returns every failed result.
func (r Results) Errors() []Result {
	var failed []Result
	for _, res := range r {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan Task, results chan<- Result) {
	defer wg.Done()
	for task := range tasks {
		data, err := runTask(ctx, task)
		results <- Result{
			Name: task.Name,
			Data: data,
			Err:  err,
		}
	}
}

func runTask(ctx context.Context, task Task) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return task.Execute(ctx)
}

// Execute runs every task and waits for all of them. A failing task does not
// cancel its siblings; tasks that start after ctx is done fail with ctx.Err().
func (p *Pool) Execute(ctx context.Context, tasks []Task) Results {
	var wg sync.WaitGroup
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, taskCh, resultCh)
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	wg.Wait()
	close(resultCh)

	results := make(Results, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}
	return results
}
