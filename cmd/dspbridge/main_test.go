package main

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sjoerd104/OpenCentauri/internal/dsp/kbuf"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
)

func TestTimedLabelsOutcome(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, timed(m, "sharespace_open", func() error { return nil }))
	err := timed(m, "kbuf_allocate", func() error { return kbuf.ErrAllocation })
	assert.ErrorIs(t, err, kbuf.ErrAllocation)

	assert.Equal(t, 2, testutil.CollectAndCount(m.OpDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OpDuration.WithLabelValues("sharespace_open", "success").(prometheus.Histogram)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OpDuration.WithLabelValues("kbuf_allocate", "error").(prometheus.Histogram)))
}

func TestTimedWithoutMetrics(t *testing.T) {
	want := errors.New("no dsp")
	assert.ErrorIs(t, timed(nil, "handshake", func() error { return want }), want)
}
