// Package orchestrator is the remote node orchestration engine.
//
// Each Engine method renders one or more command lines for the external
// remote-execution tool, runs them through a runner.Runner under the
// operation's timeout class and interprets the results with a
// classify.Policy. Failures are returned as *classify.Failure values that
// carry the failure kind, target host, operation, timeout class, rendered
// command and raw output:
//
//	eng, err := orchestrator.New(orchestrator.Config{
//		Settings: *cfg,
//		Runner:   runner.NewLocalRunner(runner.LocalConfig{}),
//	})
//	if err := eng.CheckHostCapability(ctx, "10.0.0.5", 4); err != nil {
//		if classify.IsKind(err, classify.KindInsufficientCPU) {
//			// pick another host
//		}
//	}
//
// Dependent steps (bootstrap, upload with directory creation, pull after
// existence check) run strictly in sequence within one call. The engine
// holds no per-host state, never retries and never coordinates concurrent
// calls; fleet-wide fan-out is the caller's concern.
package orchestrator
