package evaluator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/confield/confield/pkg/latebound"
	"github.com/confield/confield/pkg/starlarkapi"
	"github.com/confield/confield/pkg/telemetry"
)

// DefaultTimeout bounds an evaluation when none is configured.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when an evaluation exceeds its timeout.
var ErrTimeout = errors.New("starlark execution timeout")

// Evaluator executes rule-definition files with configuration_field
// available. It holds no per-evaluation state and may be shared between
// goroutines.
type Evaluator struct {
	ectx    *starlarkapi.Context
	timeout time.Duration
}

// NewEvaluator creates an evaluator that binds against ectx.
func NewEvaluator(ectx *starlarkapi.Context, timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{
		ectx:    ectx,
		timeout: timeout,
	}
}

// Context returns the evaluation context shared by all evaluations.
func (e *Evaluator) Context() *starlarkapi.Context {
	return e.ectx
}

// Evaluate executes the file described by req. On failure the returned
// Result is still populated with the run ID, timing and error text.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()

	runID := uuid.New().String()
	ctx = telemetry.WithEvaluationContext(ctx, runID, req.Filename)

	result, err := e.evaluate(ctx, req)
	if result == nil {
		result = &Result{}
	}
	result.RunID = runID
	result.Filename = req.Filename
	result.ExecutionTime = time.Since(startTime)
	if err != nil {
		result.Error = err.Error()
	}

	telemetry.EndEvaluationContext(ctx, runID, req.Filename, len(result.Bindings), err)

	logger := telemetry.FromContext(ctx)
	if err != nil {
		logger.WithError(err).Debug("evaluation failed")
	} else {
		logger.Debugf("evaluation produced %d late-bound defaults", len(result.Bindings))
	}

	return result, err
}

// EvaluateFile reads and evaluates filename.
func (e *Evaluator) EvaluateFile(ctx context.Context, filename string) (*Result, error) {
	return e.Evaluate(ctx, Request{Filename: filename})
}

func (e *Evaluator) evaluate(ctx context.Context, req Request) (*Result, error) {
	src := req.Source
	if src == nil {
		data, err := os.ReadFile(req.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", req.Filename, err)
		}
		src = data
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	logger := telemetry.FromContext(ctx)
	thread := &starlark.Thread{
		Name: "confield:" + req.Filename,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug(msg)
		},
	}
	starlarkapi.SetContext(thread, e.ectx)

	predeclared, err := e.predeclared(ctx, req.Inputs)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFile(thread, req.Filename, src, predeclared)
	if err != nil {
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	return &Result{
		Bindings: collectBindings(globals),
		Output:   outputOf(ctx, globals),
	}, nil
}

// predeclared builds the environment: struct, configuration_field and the
// caller's inputs.
func (e *Evaluator) predeclared(ctx context.Context, inputs map[string]interface{}) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for name, v := range starlarkapi.Predeclared() {
		predeclared[name] = v
	}
	predeclared[starlarkapi.BuiltinName] = instrumented(ctx, starlarkapi.Builtin())

	for key, val := range inputs {
		if _, reserved := predeclared[key]; reserved {
			return nil, fmt.Errorf("input %s shadows a builtin", key)
		}
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	return predeclared, nil
}

// instrumented wraps the configuration_field builtin so each call is counted
// by outcome. The inner builtin runs in the wrapper's frame so the call-site
// position is unchanged.
func instrumented(ctx context.Context, inner *starlark.Builtin) *starlark.Builtin {
	return starlark.NewBuiltin(inner.Name(), func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		v, err := inner.CallInternal(thread, args, kwargs)
		telemetry.RecordConfigurationFieldCall(ctx, outcomeOf(err))
		return v, err
	})
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := latebound.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}
