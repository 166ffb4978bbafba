// Package sandbox evaluates short model-authored snippets in a restricted
// Starlark interpreter with no filesystem, network or import access.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/logging"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultMaxSteps = 50_000_000

	maxOutputBytes  = 64 * 1024
	maxErrorLength  = 500
	snippetFilename = "snippet.py"
)

// DeniedIdentifiers may not appear anywhere in a snippet.
var DeniedIdentifiers = []string{
	"open", "exec", "eval", "__import__", "getattr", "setattr",
	"dir", "globals", "locals", "vars", "compile", "input",
}

var importLine = regexp.MustCompile(`(?m)^[ \t]*(import[ \t]+\S|from[ \t]+\S+[ \t]+import\b)`)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// EvalResult is the outcome of one snippet.
type EvalResult struct {
	Stdout    string                     `json:"stdout"`
	Globals   map[string]json.RawMessage `json:"globals,omitempty"`
	Truncated bool                       `json:"truncated,omitempty"`
}

type execResult struct {
	globals starlark.StringDict
	err     error
}

// Config bounds evaluation. Zero values use the defaults.
type Config struct {
	Timeout  time.Duration
	MaxSteps uint64
}

// Evaluator runs snippets. It holds no interpreter state between calls.
type Evaluator struct {
	timeout  time.Duration
	maxSteps uint64
	logger   *zap.Logger
}

// New creates an evaluator.
func New(cfg *Config, logger *zap.Logger) *Evaluator {
	e := &Evaluator{
		timeout:  DefaultTimeout,
		maxSteps: DefaultMaxSteps,
		logger:   logger.Named("sandbox"),
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			e.timeout = cfg.Timeout
		}
		if cfg.MaxSteps > 0 {
			e.maxSteps = cfg.MaxSteps
		}
	}
	return e
}

// RunPython checks and executes code with fresh globals.
//
// Imports, load statements and denied identifiers return KindEvalFailed
// before anything runs. Runtime errors return KindEvalFailed with a short
// message and no backtrace. Exceeding the timeout or step budget returns
// KindTimeout. When the snippet prints nothing, its public globals are
// returned as JSON.
func (e *Evaluator) RunPython(ctx context.Context, code string) (*EvalResult, error) {
	code = dedent(code)
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.New(apperrors.KindEvalFailed, "snippet is empty")
	}
	if err := check(code); err != nil {
		e.logger.Info("Rejected snippet",
			zap.String("code", logging.SanitizeQuery(code)),
			zap.String("reason", err.Error()))
		return nil, apperrors.Wrap(apperrors.KindEvalFailed, err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out := &limitedBuffer{max: maxOutputBytes}
	thread := &starlark.Thread{
		Name:  "snippet",
		Print: func(_ *starlark.Thread, msg string) { out.WriteLine(msg) },
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	// Cancel only takes effect between steps, so a single long builtin
	// call can outlive the deadline. The caller gets its answer at the
	// deadline either way; the abandoned thread stops at its next step.
	start := time.Now()
	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execResult{err: fmt.Errorf("interpreter failure: %v", p)}
			}
		}()
		globals, err := starlark.ExecFileOptions(fileOptions, thread, snippetFilename, code, predeclared())
		done <- execResult{globals: globals, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-ctx.Done():
		thread.Cancel(ctx.Err().Error())
		e.logger.Info("Snippet abandoned at deadline",
			zap.String("code", logging.SanitizeQuery(code)),
			zap.Duration("elapsed", time.Since(start)))
		return nil, e.classify(ctx, ctx.Err())
	}
	if res.err != nil {
		return nil, e.classify(ctx, res.err)
	}
	globals := res.globals

	// The thread is finished, so its output buffer is no longer written.
	result := &EvalResult{Stdout: out.String(), Truncated: out.truncated}
	if result.Stdout == "" {
		result.Globals = encodeGlobals(thread, globals)
	}

	e.logger.Debug("Snippet complete",
		zap.Int("stdout_bytes", len(result.Stdout)),
		zap.Int("globals", len(result.Globals)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (e *Evaluator) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.KindTimeout, fmt.Sprintf("snippet exceeded %s", e.timeout), err)
	case ctx.Err() != nil:
		return apperrors.Wrap(apperrors.KindAborted, "evaluation cancelled", ctx.Err())
	case strings.Contains(err.Error(), "too many steps"):
		return apperrors.Wrap(apperrors.KindTimeout, "snippet exceeded its step budget", err)
	}

	msg := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		msg = evalErr.Msg
	}
	return apperrors.Wrap(apperrors.KindEvalFailed, logging.TruncateString(msg, maxErrorLength), err)
}

// encodeGlobals returns the JSON form of every public global that has one.
func encodeGlobals(thread *starlark.Thread, globals starlark.StringDict) map[string]json.RawMessage {
	encode := jsonEncode()
	out := make(map[string]json.RawMessage)
	for _, name := range globals.Keys() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		v, err := starlark.Call(thread, encode, starlark.Tuple{globals[name]}, nil)
		if err != nil {
			continue
		}
		if s, ok := starlark.AsString(v); ok {
			out[name] = json.RawMessage(s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// limitedBuffer collects printed lines up to max bytes.
type limitedBuffer struct {
	sb        strings.Builder
	max       int
	truncated bool
}

func (b *limitedBuffer) WriteLine(s string) {
	if b.truncated {
		return
	}
	line := s + "\n"
	if remaining := b.max - b.sb.Len(); len(line) > remaining {
		b.sb.WriteString(logging.TruncateString(line, remaining))
		b.truncated = true
		return
	}
	b.sb.WriteString(line)
}

func (b *limitedBuffer) String() string {
	return b.sb.String()
}

// dedent removes the common leading whitespace of all non-blank lines.
func dedent(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return code
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
