// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 10*time.Second, "sharepoint export", func(ctx context.Context) error {
//		return exporter.Export(ctx, inspection)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 8, "push dispatch", 15*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return provider.Send(ctx, payload, sub)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, subs, 8, "push dispatch", 15*time.Second,
//		func(ctx context.Context, sub Subscription) error {
//			return provider.Send(ctx, payload, sub)
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Document export, push notification dispatch, and detection calls.
//
// # Related Packages
//
//   - pkg/inspections: Uses SafeGo for submit side effects
//   - pkg/export: Uses Batch for the backlog sweep
package async
