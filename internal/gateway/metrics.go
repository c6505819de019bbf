package gateway

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SystemMetrics is the gateway's resource snapshot served on /api/metrics
// and pushed to WS clients as "metrics" messages.
type SystemMetrics struct {
	CPULoad1    float64            `json:"cpu_load_1"`
	CPULoad5    float64            `json:"cpu_load_5"`
	CPULoad15   float64            `json:"cpu_load_15"`
	CPUPercent  float64            `json:"cpu_percent"`
	CPUCores    int                `json:"cpu_cores"`
	MemUsedMB   float64            `json:"mem_used_mb"`
	MemTotalMB  float64            `json:"mem_total_mb"`
	MemPercent  float64            `json:"mem_percent"`
	HeapAllocMB float64            `json:"heap_alloc_mb"`
	SysMB       float64            `json:"sys_mb"`
	GCRuns      uint32             `json:"gc_runs"`
	Goroutines  int                `json:"goroutines"`
	UptimeSec   int64              `json:"uptime_sec"`
	WSClients   int                `json:"ws_clients"`
	Latency     LatencyPercentiles `json:"latency_ms"`
	TS          string             `json:"ts"`
}

type cpuSample struct {
	idle  uint64
	total uint64
}

var (
	cpuMu   sync.Mutex
	prevCPU cpuSample
)

// CollectMetrics gathers process and host usage. Host figures come from
// /proc and stay zero where it is unavailable.
func CollectMetrics(start time.Time) SystemMetrics {
	m := SystemMetrics{
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
		CPUCores:   runtime.NumCPU(),
	}

	cur := readCPUSample()
	cpuMu.Lock()
	if prevCPU.total > 0 && cur.total > prevCPU.total {
		dTotal := float64(cur.total - prevCPU.total)
		dIdle := float64(cur.idle - prevCPU.idle)
		m.CPUPercent = (1.0 - dIdle/dTotal) * 100.0
	}
	prevCPU = cur
	cpuMu.Unlock()

	if line := firstLine("/proc/loadavg", ""); line != "" {
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			m.CPULoad1, _ = strconv.ParseFloat(fields[0], 64)
			m.CPULoad5, _ = strconv.ParseFloat(fields[1], 64)
			m.CPULoad15, _ = strconv.ParseFloat(fields[2], 64)
		}
	}

	total := meminfoKB("MemTotal:")
	available := meminfoKB("MemAvailable:")
	if total > 0 && available <= total {
		used := total - available
		m.MemTotalMB = float64(total) / 1024
		m.MemUsedMB = float64(used) / 1024
		m.MemPercent = float64(used) / float64(total) * 100
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC
	return m
}

func readCPUSample() cpuSample {
	line := firstLine("/proc/stat", "cpu ")
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return cpuSample{}
	}
	var s cpuSample
	for i := 1; i < len(fields); i++ {
		v, _ := strconv.ParseUint(fields[i], 10, 64)
		s.total += v
		if i == 4 {
			s.idle = v
		}
	}
	return s
}

func meminfoKB(key string) uint64 {
	fields := strings.Fields(firstLine("/proc/meminfo", key))
	if len(fields) < 2 {
		return 0
	}
	v, _ := strconv.ParseUint(fields[1], 10, 64)
	return v
}

// firstLine returns the first line of path starting with prefix.
func firstLine(path, prefix string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, prefix) {
			return line
		}
	}
	return ""
}
