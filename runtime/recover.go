package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Aniket1mg/cauldron/log"
)

// RestartPolicy controls what a SafeGo worker does after recovering a panic.
type RestartPolicy int

const (
	// LetDie stops the goroutine after a recovered panic.
	LetDie RestartPolicy = iota
	// KeepRunning relaunches the goroutine after a recovered panic, until
	// its context is cancelled.
	KeepRunning
)

// maxStackLen bounds the stack trace captured into log fields.
const maxStackLen = 4096

// logPanicWithStack logs a recovered panic value with its stack trace.
// It is nil-logger safe.
func logPanicWithStack(logger log.Logger, name string, panicValue any, stack []byte) {
	if logger == nil {
		return
	}

	stackStr := string(stack)
	if len(stackStr) > maxStackLen {
		stackStr = stackStr[:maxStackLen] + "\n...[truncated]"
	}

	logger.Log(context.Background(), log.LevelError, "panic recovered",
		log.String("goroutine_name", name),
		log.String("panic_value", formatPanicValue(panicValue)),
		log.String("stack_trace", stackStr),
	)
}

// formatPanicValue formats a panic value as a string.
func formatPanicValue(value any) string {
	if value == nil {
		return "<nil>"
	}

	switch val := value.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", value)
	}
}

// HandlePanicValue logs an already-recovered panic value. Use this when the
// caller needs its own recover() block but wants consistent reporting.
func HandlePanicValue(ctx context.Context, logger log.Logger, panicValue any, component, name string) {
	if logger == nil {
		return
	}

	logger.Log(ctx, log.LevelError, "panic recovered",
		log.String("component", component),
		log.String("goroutine_name", name),
		log.String("panic_value", formatPanicValue(panicValue)),
	)
}

// RecoverAndLog recovers a panic in the deferring function and logs it.
//
//	defer runtime.RecoverAndLog(logger, "cache-refresh")
func RecoverAndLog(logger log.Logger, name string) {
	if r := recover(); r != nil {
		logPanicWithStack(logger, name, r, debug.Stack())
	}
}

// RecoverAndLogWithContext recovers a panic and logs it with component context.
func RecoverAndLogWithContext(ctx context.Context, logger log.Logger, component, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}

		stackStr := string(debug.Stack())
		if len(stackStr) > maxStackLen {
			stackStr = stackStr[:maxStackLen] + "\n...[truncated]"
		}

		logger.Log(ctx, log.LevelError, "panic recovered",
			log.String("component", component),
			log.String("goroutine_name", name),
			log.String("panic_value", formatPanicValue(r)),
			log.String("stack_trace", stackStr),
		)
	}
}

// SafeGo launches fn on a new goroutine with panic recovery.
func SafeGo(logger log.Logger, name string, fn func()) {
	go func() {
		defer RecoverAndLog(logger, name)

		fn()
	}()
}

// SafeGoWithContextAndComponent launches fn on a new goroutine with panic
// recovery and an explicit restart policy. The goroutine observes ctx: with
// KeepRunning, fn is relaunched after a recovered panic until ctx is
// cancelled. Cancellation of ctx is the shutdown path; callers retain the
// cancel func and invoke it when the owning component closes.
func SafeGoWithContextAndComponent(
	ctx context.Context,
	logger log.Logger,
	component, name string,
	policy RestartPolicy,
	fn func(ctx context.Context),
) {
	go func() {
		for {
			panicked := runOnce(ctx, logger, component, name, fn)

			if !panicked || policy != KeepRunning {
				return
			}

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
}

// runOnce executes fn once, recovering and logging any panic.
// It reports whether fn panicked.
func runOnce(ctx context.Context, logger log.Logger, component, name string, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true

			logPanicWithStack(logger, component+"/"+name, r, debug.Stack())
		}
	}()

	fn(ctx)

	return false
}
