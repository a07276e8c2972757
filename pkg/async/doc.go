// Package async provides guarded execution primitives for plugin code.
//
// # Overview
//
// Plugin-contributed extensions and module imports are untrusted: they may panic,
// block, or ignore cancellation. This package runs them with panic recovery and a
// timeout so a single misbehaving extension cannot stall an aggregate operation.
//
// # Key Functions
//
// Call: run a task and wait for it with a timeout
//
//	err := async.Call(ctx, 30*time.Second, "hook onAfterInstall", func(ctx context.Context) error {
//		return hook.Run(ctx, args)
//	})
//	if errors.Is(err, async.ErrTimeout) {
//		// the hook is still running in the background
//	}
//
// CallValue: same for tasks that return a value
//
//	out, err := async.CallValue(ctx, timeout, "processor", func(ctx context.Context) (string, error) {
//		return p.Process(ctx, content, tctx)
//	})
//
// SafeGo: long-lived background loop with panic recovery
//
//	async.SafeGo(ctx, logger, "plugin watcher", watcher.Run)
//
// # Related Packages
//
//   - pkg/plugins: wraps hooks, processors and imports with Call
package async
