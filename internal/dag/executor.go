package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/pagegrid/internal/ctxlog"
)

// SkippedError marks a task that never ran because a task it depends on,
// directly or transitively, failed or was cancelled.
type SkippedError struct {
	Upstream string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("skipped due to upstream failure of '%s'", e.Upstream)
}

// Run executes the entire graph concurrently and returns an error if any node fails.
// It respects the cancellation signal from the provided context.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.Graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, id := range e.Graph.IDs() {
		node := e.Graph.Nodes[id]
		node.depCount.Store(int32(len(node.Deps)))
		if len(node.Deps) == 0 {
			logger.Debug("Found root node.", "nodeID", node.ID)
			readyChan <- node
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(e.Graph.Nodes))

	var workers sync.WaitGroup
	logger.Debug("Starting worker pool.", "workers", e.numWorkers)
	for i := 0; i < e.numWorkers; i++ {
		workers.Add(1)
		go func(workerID int) {
			defer workers.Done()
			e.worker(runCtx, readyChan, cancel, workerID)
		}(i)
	}

	logger.Info("Waiting for all tasks to complete...")
	e.wg.Wait()
	close(readyChan)
	workers.Wait()
	logger.Info("All tasks completed.")

	var failedNodes []string
	var rootCauseError error
	for _, id := range e.Graph.IDs() {
		node := e.Graph.Nodes[id]
		if node.GetState() != Failed {
			continue
		}
		logger.Debug("Task did not succeed.", "nodeID", node.ID, "error", node.Error)
		// A skipped or cancelled task is a symptom, not a cause.
		var skipped *SkippedError
		if node.Error == nil || errors.As(node.Error, &skipped) || errors.Is(node.Error, context.Canceled) {
			continue
		}
		logger.Error("Task failed.", "nodeID", node.ID, "error", node.Error)
		failedNodes = append(failedNodes, node.ID)
		if rootCauseError == nil {
			rootCauseError = node.Error
		}
	}

	if rootCauseError != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedNodes, ", "), rootCauseError)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("execution cancelled: %w", err)
	}
	return nil
}

// skipDependents recursively marks all downstream nodes as failed and decrements the WaitGroup.
func (e *Executor) skipDependents(ctx context.Context, node *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedIDs(node.Dependents) {
		dependent := node.Dependents[id]
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent task due to upstream failure.", "nodeID", dependent.ID, "dependency", node.ID)
			dependent.Error = &SkippedError{Upstream: node.ID}
			dependent.State.Store(int32(Failed))
			e.wg.Done()
			e.skipDependents(ctx, dependent)
		})
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for node := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", node.ID)

		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				workerLogger.Warn("Context canceled, skipping task execution.")
				node.Error = ctx.Err()
				node.State.Store(int32(Failed))
				e.wg.Done()
				e.skipDependents(ctx, node)
			})
			continue
		}

		workerLogger.Debug("Worker picked up task for execution.")
		node.State.Store(int32(Running))
		if err := e.runNode(ctx, node); err != nil {
			workerLogger.Debug("Task execution failed.", "error", err)
			node.Error = err
			node.State.Store(int32(Failed))
			cancel()
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Task execution succeeded.")
		node.State.Store(int32(Done))

		for _, id := range sortedIDs(node.Dependents) {
			dependent := node.Dependents[id]
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent task.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}
