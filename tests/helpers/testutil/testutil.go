// Package testutil provides testing utilities and helpers for sandbox tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jscsandbox/bridge"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// MockNativeModule is a mock implementation of bridge.NativeModule for testing.
type MockNativeModule struct {
	mock.Mock
}

// EnsureInstalled mocks the EnsureInstalled method.
func (m *MockNativeModule) EnsureInstalled(ctx context.Context, host bridge.Host) (bool, error) {
	args := m.Called(ctx, host)
	return args.Bool(0), args.Error(1)
}

// MockBridge is a mock implementation of bridge.Bridge for testing.
type MockBridge struct {
	mock.Mock
}

// CreateRuntime mocks the CreateRuntime method.
func (m *MockBridge) CreateRuntime(opts *sandbox.Options) (*sandbox.Runtime, error) {
	args := m.Called(opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sandbox.Runtime), args.Error(1)
}

// IsAvailable mocks the IsAvailable method.
func (m *MockBridge) IsAvailable() bool {
	args := m.Called()
	return args.Bool(0)
}

// NewMockBridge creates a mock bridge that reports itself alive.
func NewMockBridge(t *testing.T) *MockBridge {
	t.Helper()
	m := new(MockBridge)

	// Default behavior: liveness probe holds
	m.On("IsAvailable").Return(true).Maybe()

	return m
}

// NewInstallingModule creates a mock native module that installs b into the
// host it is given and reports success.
func NewInstallingModule(t *testing.T, b bridge.Bridge) *MockNativeModule {
	t.Helper()
	m := new(MockNativeModule)

	m.On("EnsureInstalled", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(bridge.Host).Install(b)
		}).
		Return(true, nil).
		Maybe()

	return m
}

// StaticStrategy returns a discovery strategy that only knows one module.
func StaticStrategy(source, name string, m bridge.NativeModule) bridge.Strategy {
	return bridge.Strategy{
		Name: source,
		Lookup: func(lookup string) (bridge.NativeModule, bool) {
			if lookup != name || m == nil {
				return nil, false
			}
			return m, true
		},
	}
}

// EmptyStrategy returns a discovery strategy that never finds anything.
func EmptyStrategy(source string) bridge.Strategy {
	return bridge.Strategy{
		Name:   source,
		Lookup: func(string) (bridge.NativeModule, bool) { return nil, false },
	}
}

// NewContext creates a runtime and one context from cfg, disposing the
// runtime when the test ends.
func NewContext(t *testing.T, cfg sandbox.Config) *sandbox.Context {
	t.Helper()

	rt, err := sandbox.NewRuntime(cfg)
	require.NoError(t, err)
	t.Cleanup(rt.Dispose)

	c, err := rt.CreateContext()
	require.NoError(t, err)
	return c
}

// AssertEval evaluates code and asserts the result equals want.
func AssertEval(t *testing.T, c *sandbox.Context, code string, want sandbox.Value) {
	t.Helper()

	got, err := c.Eval(code)
	require.NoError(t, err, "eval %q", code)
	if !sandbox.Equal(want, got) {
		t.Fatalf("eval %q: expected %s, got %s", code, want, got)
	}
}
