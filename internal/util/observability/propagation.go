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

	"go.opentelemetry.io/otel/propagation"
)

// propagator is used for all RPC transports regardless of the global propagator,
// so that peers always agree on the format.
var propagator = propagation.TraceContext{}

// InjectTraceContext returns W3C trace context headers for the span in ctx.
//
// It returns nil if ctx does not carry a valid span context.
func InjectTraceContext(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)

	if len(carrier) == 0 {
		return nil
	}

	return carrier
}

// ExtractTraceContext returns a copy of ctx with the remote span context from headers.
//
// Missing or malformed headers leave ctx unchanged.
func ExtractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}

	return propagator.Extract(ctx, propagation.MapCarrier(headers))
}
