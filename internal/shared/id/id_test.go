package id

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{LinkPrefix, MuxPrefix} {
		t.Run(prefix, func(t *testing.T) {
			s := gen.GenerateWithPrefix(prefix)
			require.True(t, strings.HasPrefix(s, prefix+"_"))

			parts := strings.Split(s, "_")
			require.Len(t, parts, 2)
			_, err := ulid.Parse(parts[1])
			assert.NoError(t, err)
		})
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewLinkID().String(), "link_"))
	assert.True(t, strings.HasPrefix(NewMuxID().String(), "mux_"))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewLinkID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("link_not-a-ulid")
	assert.Error(t, err)
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)
	a := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	b := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	assert.Equal(t, a.Entropy(), b.Entropy())
}
