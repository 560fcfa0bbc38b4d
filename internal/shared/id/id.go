// Package id generates the identifiers tagged on bridge and multiplexer logs.
//
// IDs are prefixed ULIDs: sortable by creation time, so log lines from
// successive runs of the same daemon order naturally, and the prefix tells
// which process produced them.
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

// LinkID identifies one run of the ARM/DSP link.
type LinkID string

// MuxID identifies one run of the serial multiplexer.
type MuxID string

const (
	LinkPrefix = "link"
	MuxPrefix  = "mux"
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

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefix_ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewLinkID generates a new link ID
func NewLinkID() LinkID {
	return LinkID(Default().GenerateWithPrefix(LinkPrefix))
}

// NewMuxID generates a new multiplexer ID
func NewMuxID() MuxID {
	return MuxID(Default().GenerateWithPrefix(MuxPrefix))
}

func (id LinkID) String() string { return string(id) }
func (id MuxID) String() string  { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ID.
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
