// Package trace provides lightweight tracing for pass pipelines.
//
// Tracing records when collection sessions start and finish, when each pass
// runs, and (at the most verbose level) per-operation census details. It is
// meant for diagnosing slow or stuck pipelines and is independent of the
// census report itself.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	passviz run --trace=- --trace-level=pass input.toml
//
// # Levels
//
//   - LevelOff: No tracing
//   - LevelSession: Session boundaries only
//   - LevelPass: Session and pass boundaries
//   - LevelDebug: Everything, including per-operation events
//
// # Context Propagation
//
// Tracers travel with the context handed to the pass manager:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "inline", parentID)
//	defer span.End("")
package trace
