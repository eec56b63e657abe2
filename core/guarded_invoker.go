package core

import (
	"context"
	"reflect"
	"runtime"
	"runtime/debug"
)

// GuardedInvoker runs callbacks so that a panic or returned error becomes a
// *CallbackError delivered once to the ErrorReporter. Invoke never panics.
type GuardedInvoker struct {
	reporter ErrorReporter
}

// NewGuardedInvoker returns an invoker reporting to reporter, or to a
// LoggingErrorReporter when reporter is nil.
func NewGuardedInvoker(reporter ErrorReporter) *GuardedInvoker {
	if reporter == nil {
		reporter = NewLoggingErrorReporter(nil)
	}
	return &GuardedInvoker{reporter: reporter}
}

// Invoke calls fn and returns the captured failure, if any, after reporting it.
func (g *GuardedInvoker) Invoke(ctx context.Context, source CallbackSource, name string, fn func(ctx context.Context) error) (result *CallbackError) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &CallbackError{
				Source: source,
				Name:   name,
				Panic:  rec,
				Stack:  debug.Stack(),
			}
		}
		if result != nil {
			g.report(ctx, result)
		}
	}()

	if err := fn(ctx); err != nil {
		return &CallbackError{Source: source, Name: name, Err: err}
	}
	return nil
}

// InvokeTask is Invoke for a Task, which can only fail by panicking.
func (g *GuardedInvoker) InvokeTask(ctx context.Context, source CallbackSource, name string, task Task) *CallbackError {
	return g.Invoke(ctx, source, name, func(ctx context.Context) error {
		task(ctx)
		return nil
	})
}

func (g *GuardedInvoker) report(ctx context.Context, err *CallbackError) {
	// a panicking reporter must not escape the pass either
	defer func() { recover() }()
	g.reporter.ReportError(ctx, err)
}

// resolveTaskName returns explicit, or the function's symbol name.
func resolveTaskName(fn any, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if fn == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	f := runtime.FuncForPC(v.Pointer())
	if f == nil || f.Name() == "" {
		return "anonymous"
	}
	return f.Name()
}
