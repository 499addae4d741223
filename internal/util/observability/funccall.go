// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"runtime"
	"runtime/trace"
	"strings"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/FerretDB/polydoc/internal/util/resource"
)

// tracerName is the instrumentation scope name for all spans.
const tracerName = "github.com/FerretDB/polydoc"

// funcCall tracks function calls.
type funcCall struct {
	token  *resource.Token
	region *trace.Region
	span   oteltrace.Span
}

// FuncCall adds observability to a function call.
//
// It should be called at the very beginning of the function,
// and returned function should be called at exit.
// The returned function must not be passed or stored.
// The only valid way to use FuncCall is:
//
//	func foo(ctx context.Context) {
//	    defer FuncCall(ctx)()
//	    // ...
//
// FuncCall starts an OpenTelemetry span named after the function
// and, if the Go execution tracer is enabled, a region for it.
// Spans become children of the span in ctx (including spans received over RPC).
func FuncCall(ctx context.Context) func() {
	fc := &funcCall{
		token: resource.NewToken(),
	}
	resource.Track(fc, fc.token)

	name := callerName()

	_, fc.span = otel.Tracer(tracerName).Start(ctx, name)

	if trace.IsEnabled() {
		fc.region = trace.StartRegion(ctx, name)
	}

	return fc.leave
}

// leave is called on function exit.
func (fc *funcCall) leave() {
	if fc.region != nil {
		fc.region.End()
	}

	fc.span.End()

	resource.Untrack(fc, fc.token)
}

// callerName returns the short name of FuncCall's caller, like "sqldoc.(*collection).Store".
func callerName() string {
	pc := make([]uintptr, 1)

	// skip runtime.Callers, callerName, and FuncCall
	runtime.Callers(3, pc)
	f, _ := runtime.CallersFrames(pc).Next()

	name := f.Function
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	return name
}
