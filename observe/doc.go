// Package observe provides structured logging and telemetry wiring for
// the annosync library.
//
// It defines a minimal Logger interface with a JSON implementation and a
// no-op implementation. Every annosync package accepts an optional Logger;
// a nil logger disables logging.
//
// The library packages record traces and metrics through the otel API and
// work against whatever providers the host installs. NewTelemetry is the
// optional provider bootstrap for hosts that want exported telemetry
// without wiring the otel SDK themselves.
package observe
