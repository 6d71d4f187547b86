// Command jscsandbox evaluates JavaScript in an isolated sandbox.
//
// Usage:
//
//	jscsandbox eval '1 + 2 * 3'
//	jscsandbox eval --file script.js --globals seed.yaml --json
//	jscsandbox eval '({a: [1, 2]})' --query '.a[1]'
//	jscsandbox repl --metrics-addr 127.0.0.1:9464
//	jscsandbox run 'scripts/**/*.js' --workers 4
//	jscsandbox bench 'Math.sqrt(2)' -n 1000
//	jscsandbox selftest
//	jscsandbox serve --addr 127.0.0.1:9464
//
// Configuration is read from the environment (JSC_SANDBOX_*, LOG_*,
// METRICS_ENABLED, JSC_STATUS_*). --log-level and --dev override the
// logging variables for the invocation.
package main
