package handler

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var errProcFormat = errors.New("unexpected procfs format")

// procFS reads host counters from a Linux /proc tree.
type procFS struct {
	root string
}

type cpuTimes struct {
	idle, total uint64
}

// busySince returns the busy percentage between prev and t.
func (t cpuTimes) busySince(prev cpuTimes) float64 {
	if t.total <= prev.total {
		return 0
	}
	idle := float64(t.idle - prev.idle)
	total := float64(t.total - prev.total)
	return (1 - idle/total) * 100
}

func (p procFS) path(name string) string {
	return filepath.Join(p.root, name)
}

// cpuTimes sums the aggregate "cpu" line of stat. Idle is the fourth counter.
func (p procFS) cpuTimes() (cpuTimes, error) {
	data, err := os.ReadFile(p.path("stat"))
	if err != nil {
		return cpuTimes{}, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTimes{}, fmt.Errorf("stat: %w", errProcFormat)
	}
	var t cpuTimes
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return cpuTimes{}, fmt.Errorf("stat field %d: %w", i+1, err)
		}
		t.total += v
		if i == 3 {
			t.idle = v
		}
	}
	return t, nil
}

func (p procFS) memory() (total, available uint64, err error) {
	vals, err := p.kiloFields("meminfo", "MemTotal", "MemAvailable")
	if err != nil {
		return 0, 0, err
	}
	return vals["MemTotal"], vals["MemAvailable"], nil
}

func (p procFS) rss() (uint64, error) {
	vals, err := p.kiloFields("self/status", "VmRSS")
	if err != nil {
		return 0, err
	}
	return vals["VmRSS"], nil
}

func (p procFS) load1() (float64, error) {
	data, err := os.ReadFile(p.path("loadavg"))
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
	return strconv.ParseFloat(first, 64)
}

// kiloFields reads "Key:   123 kB" lines from name and returns the wanted
// keys in bytes. Every key must be present.
func (p procFS) kiloFields(name string, keys ...string) (map[string]uint64, error) {
	f, err := os.Open(p.path(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[string]uint64, len(keys))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(out) < len(keys) {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !want[key] {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%s %s: %w", name, key, errProcFormat)
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", name, key, err)
		}
		out[key] = v * 1024
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) < len(keys) {
		return nil, fmt.Errorf("%s: missing keys: %w", name, errProcFormat)
	}
	return out, nil
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
