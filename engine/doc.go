// Package engine wires the claim subsystems together and provides the
// caller-facing API for submitting, claiming and inspecting work.
//
// The engine package exists to break an import cycle: the root claim
// package defines Entity and the sentinel errors (imported by lock, job,
// transaction, etc.) and therefore cannot import those packages back.
// Engine sits above every subsystem package and below the application.
//
// # Building an Engine
//
//	r, err := claim.New(
//	    claim.WithStore(pgStore),
//	    claim.WithLockTTL(30*time.Second),
//	    claim.WithConcurrency(8),
//	)
//
//	eng, err := engine.Build(r,
//	    engine.WithExtension(natshook.New(nc)),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Registering and Submitting Jobs
//
//	engine.Register(eng, SendEmail)
//	engine.Enqueue(ctx, eng, SendEmail, EmailInput{To: "user@example.com"},
//	    job.WithPriority(10))
//
// # Driving Claims by Hand
//
//	j, _ := eng.ClaimNextJob(ctx, "worker-a")
//	ok, _ := eng.SetJobStatus(ctx, j.ID, job.StatusRunning, "worker-a", "")
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithClock]: set the time source for every lock and timestamp
//   - [WithTransactionWork]: set the transaction processing function
//   - [WithWorkerID]: set the pool's base worker ID
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
