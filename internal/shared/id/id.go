// Package id generates identifiers for sandbox entities.
//
// Every runtime, context and callable handle carries a prefixed ULID:
//   - Lexicographic sortability: creation order is visible in logs
//   - Prefixed types: rt_*, ctx_*, fn_* tell entities apart at a glance
//   - Type safety: separate string types prevent passing one ID for another
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RuntimeID identifies a sandbox runtime (one engine instance)
type RuntimeID string

// ContextID identifies an isolated global scope inside a runtime
type ContextID string

// FunctionID identifies an opaque callable handle held by the host
type FunctionID string

const (
	RuntimePrefix  = "rt"
	ContextPrefix  = "ctx"
	FunctionPrefix = "fn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic IDs in tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRuntimeID generates a new runtime ID
func NewRuntimeID() RuntimeID {
	return RuntimeID(Default().GenerateWithPrefix(RuntimePrefix))
}

// NewContextID generates a new context ID
func NewContextID() ContextID {
	return ContextID(Default().GenerateWithPrefix(ContextPrefix))
}

// NewFunctionID generates a new callable handle ID
func NewFunctionID() FunctionID {
	return FunctionID(Default().GenerateWithPrefix(FunctionPrefix))
}

func (id RuntimeID) String() string  { return string(id) }
func (id ContextID) String() string  { return string(id) }
func (id FunctionID) String() string { return string(id) }

// IsValid checks if a string is a valid ULID, with or without a prefix
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Parse parses a ULID string, stripping a known prefix if present
func Parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the creation time from an ID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
