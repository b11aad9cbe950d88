package api

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo reports host resources, useful when sizing the worker
// pool for a deployment
func (h *Handler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	if threads, err := cpu.Counts(true); err == nil {
		info["cpu_threads"] = threads
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["ram_total_bytes"] = vm.Total
		info["ram_used_percent"] = vm.UsedPercent
	}
	if hi, err := host.Info(); err == nil {
		info["hostname"] = hi.Hostname
		info["os"] = hi.OS
		info["platform"] = hi.Platform
		info["uptime_seconds"] = hi.Uptime
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
