// Copyright 2025 Tom Barlow
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

/*
Package tracing provides run identifiers and OpenTelemetry spans for the
devserver.

Each invocation gets a run ID that is attached to every log line. Composing
the topology and bootstrapping topics are recorded as spans. Spans go
nowhere unless --trace-file is given, in which case they are written to that
file as JSON by the stdout exporter:

	provider, err := tracing.Setup(ctx, tracing.Config{
	    ServiceVersion: version,
	    Output:         f,
	})
	defer provider.Shutdown(ctx)

Components obtain their tracer through the global provider:

	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "topology.compose")
	defer func() { tracing.EndSpan(span, err) }()
*/
package tracing
