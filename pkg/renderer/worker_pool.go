package renderer

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/df07/go-adaptive-sampler/pkg/adaptive"
)

// TaskKind selects what a worker does with a region
type TaskKind int

const (
	SampleTask   TaskKind = iota // Add one sample to every pixel of the region
	ClassifyTask                 // Test the region for convergence
)

// RegionTask represents one region of work for the worker pool
type RegionTask struct {
	Kind    TaskKind
	Region  adaptive.Region
	Round   int               // 1-based sample index being taken
	TaskID  int               // Index of the region in the sampler's active set
	Seed    int64             // Render seed; combined with Round and Region for the task RNG
	Sampler *adaptive.Sampler // Shared sampler whose buffers the task reads or writes
}

// RegionResult contains the result of a region task
type RegionResult struct {
	TaskID         int
	Samples        int                     // Pixel samples taken (SampleTask)
	Classification adaptive.Classification // Convergence result (ClassifyTask)
	Error          error
}

// WorkerPool manages parallel region processing
type WorkerPool struct {
	taskQueue   chan RegionTask
	resultQueue chan RegionResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
}

// Worker handles individual region tasks
type Worker struct {
	ID          int
	source      SampleSource
	taskQueue   chan RegionTask
	resultQueue chan RegionResult
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(source SampleSource, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	// The region count changes every round, so tasks are submitted from a
	// separate goroutine instead of sizing the queues for the worst case.
	wp := &WorkerPool{
		taskQueue:   make(chan RegionTask, numWorkers*2),
		resultQueue: make(chan RegionResult, numWorkers*2),
		numWorkers:  numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		worker := &Worker{
			ID:          i,
			source:      source,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		}
		wp.workers = append(wp.workers, worker)
	}

	return wp
}

// Start begins all workers
func (wp *WorkerPool) Start() {
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.run(&wp.wg)
	}
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	close(wp.taskQueue) // No more tasks
	wp.wg.Wait()        // Wait for workers to finish
	close(wp.resultQueue)
}

// SubmitTask submits a region task to the worker pool
func (wp *WorkerPool) SubmitTask(task RegionTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed region result
func (wp *WorkerPool) GetResult() (RegionResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// RunBatch submits tasks and waits for all of their results, ordered by
// TaskID. It acts as the round barrier: nothing touches the partition until
// every task of the batch has reported back.
func (wp *WorkerPool) RunBatch(tasks []RegionTask) ([]RegionResult, error) {
	go func() {
		for _, task := range tasks {
			wp.SubmitTask(task)
		}
	}()

	results := make([]RegionResult, len(tasks))
	var firstErr error
	for range tasks {
		result, ok := wp.GetResult()
		if !ok {
			return nil, fmt.Errorf("worker pool closed unexpectedly")
		}
		if result.Error != nil && firstErr == nil {
			firstErr = result.Error
		}
		results[result.TaskID] = result
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		w.resultQueue <- w.process(task)
	}
}

// process executes a single task. Regions handed out in one batch never
// overlap, so writes to the shared buffers need no locking.
func (w *Worker) process(task RegionTask) (result RegionResult) {
	result.TaskID = task.TaskID
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("region %v round %d: %v", task.Region, task.Round, r)
		}
	}()

	switch task.Kind {
	case SampleTask:
		result.Samples = w.sampleRegion(task)
	case ClassifyTask:
		result.Classification = task.Sampler.Classify(task.Region)
	default:
		result.Error = fmt.Errorf("unknown task kind %d", task.Kind)
	}
	return result
}

// sampleRegion adds one sample to every pixel of the task's region. Odd
// rounds also feed the secondary buffer, which therefore holds half of the
// samples and should equal half of primary once the region is converged.
func (w *Worker) sampleRegion(task RegionTask) int {
	r := task.Region
	random := rand.New(rand.NewSource(taskSeed(task)))
	companion := task.Round%2 == 1

	for y := r.StartY; y < r.EndY; y++ {
		for x := r.StartX; x < r.EndX; x++ {
			color := w.source.Sample(x, y, random)
			task.Sampler.ContributePrimary(x, y, color)
			if companion {
				task.Sampler.ContributeSecondary(x, y, color)
			}
		}
	}
	return r.Area()
}

// taskSeed derives a deterministic seed from the render seed, the round and
// the region origin, so results do not depend on which worker ran the task.
func taskSeed(task RegionTask) int64 {
	width := int64(task.Sampler.Config().Width)
	origin := int64(task.Region.StartY)*width + int64(task.Region.StartX)
	return task.Seed + int64(task.Round)*1_000_003 + origin + 42 // +42 to avoid seed 0
}
