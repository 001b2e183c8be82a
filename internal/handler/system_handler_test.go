package handler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m 42s", formatDuration(42*time.Second))
	assert.Equal(t, "1h 2m 3s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "2d 0h 5m 0s", formatDuration(48*time.Hour+5*time.Minute))
}

func writeProc(t *testing.T, files map[string]string) procFS {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return procFS{root: root}
}

func TestProcFSReaders(t *testing.T) {
	p := writeProc(t, map[string]string{
		"stat":        "cpu  100 0 100 800 0 0 0 0\ncpu0 50 0 50 400\n",
		"meminfo":     "MemTotal:       16384 kB\nMemFree:  100 kB\nMemAvailable:    4096 kB\n",
		"self/status": "Name:\tgateway\nVmRSS:\t    2048 kB\n",
		"loadavg":     "0.52 0.40 0.33 1/123 4567\n",
	})

	cpu, err := p.cpuTimes()
	require.NoError(t, err)
	assert.Equal(t, cpuTimes{idle: 800, total: 1000}, cpu)
	assert.InDelta(t, 50.0, cpuTimes{idle: 900, total: 1200}.busySince(cpu), 0.001)
	assert.Zero(t, cpu.busySince(cpu))

	total, avail, err := p.memory()
	require.NoError(t, err)
	assert.Equal(t, uint64(16384*1024), total)
	assert.Equal(t, uint64(4096*1024), avail)

	rss, err := p.rss()
	require.NoError(t, err)
	assert.Equal(t, uint64(2048*1024), rss)

	load, err := p.load1()
	require.NoError(t, err)
	assert.InDelta(t, 0.52, load, 0.0001)
}

func TestProcFSMalformed(t *testing.T) {
	p := writeProc(t, map[string]string{
		"stat":    "intr 1 2 3\n",
		"meminfo": "MemTotal: 10 kB\n",
	})

	_, err := p.cpuTimes()
	assert.ErrorIs(t, err, errProcFormat)

	_, _, err = p.memory()
	assert.ErrorIs(t, err, errProcFormat)

	_, err = p.rss()
	assert.Error(t, err)
}
