package sandbox

import (
	"fmt"
	"math"
	"sort"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// predeclared returns a fresh set of names visible to every snippet, in
// addition to the Starlark universe (len, sorted, min, max, range, ...).
func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"math": starmath.Module,
		"json": starjson.Module,
		"statistics": &starlarkstruct.Module{
			Name: "statistics",
			Members: starlark.StringDict{
				"mean":   starlark.NewBuiltin("mean", statMean),
				"median": starlark.NewBuiltin("median", statMedian),
				"stdev":  starlark.NewBuiltin("stdev", statStdev),
			},
		},
		"sum":   starlark.NewBuiltin("sum", builtinSum),
		"round": starlark.NewBuiltin("round", builtinRound),
		"range": starlark.NewBuiltin("range", builtinRange),
	}
}

// maxRangeLen bounds range() so one builtin call over it stays short.
const maxRangeLen = 10_000_000

// range(...) is the universe range with a length cap.
func builtinRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := starlark.Call(thread, starlark.Universe["range"], args, kwargs)
	if err != nil {
		return nil, err
	}
	if n := starlark.Len(v); n > maxRangeLen {
		return nil, fmt.Errorf("%s: %d elements exceeds the limit of %d", b.Name(), n, maxRangeLen)
	}
	return v, nil
}

func jsonEncode() starlark.Value {
	return starjson.Module.Members["encode"]
}

// sum(iterable, start=0)
func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	acc := start
	var x starlark.Value
	for iter.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		acc = next
	}
	return acc, nil
}

// round(number, ndigits=None) rounds half to even. Without ndigits the
// result is an int.
func builtinRound(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}

	if ndigits == starlark.None {
		if i, ok := x.(starlark.Int); ok {
			return i, nil
		}
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
		}
		return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
	}

	var n int
	if err := starlark.AsInt(ndigits, &n); err != nil {
		return nil, fmt.Errorf("%s: ndigits: %w", b.Name(), err)
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	pow := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*pow) / pow), nil
}

// floats unpacks a single iterable argument of numbers.
func floats(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]float64, error) {
	var iterable starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &iterable); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var out []float64
	var x starlark.Value
	for iter.Next(&x) {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s requires at least one data point", b.Name())
	}
	return out, nil
}

func statMean(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	xs, err := floats(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.Float(mean(xs)), nil
}

func statMedian(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	xs, err := floats(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return starlark.Float(xs[mid]), nil
	}
	return starlark.Float((xs[mid-1] + xs[mid]) / 2), nil
}

// stdev is the sample standard deviation.
func statStdev(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	xs, err := floats(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("%s requires at least two data points", b.Name())
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return starlark.Float(math.Sqrt(ss / float64(len(xs)-1))), nil
}

func mean(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
