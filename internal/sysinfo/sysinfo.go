// Package sysinfo собирает сведения о хосте агента.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
)

// Collect возвращает сведения о хосте. Список дисплеев заполняет
// вызывающий из бэкенда захвата.
func Collect() (types.SystemInfo, error) {
	info := types.SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.OSVersion = hi.PlatformVersion
	}

	cores, err := cpu.Counts(true)
	if err != nil {
		cores = runtime.NumCPU()
	}
	info.CPUCores = cores

	vm, err := mem.VirtualMemory()
	if err != nil {
		return info, agenterr.Wrap(agenterr.KindSystem, "read memory stats", err)
	}
	info.MemoryTotal = vm.Total
	info.MemoryAvailable = vm.Available

	return info, nil
}

// Usage возвращает текущую загрузку CPU (проценты) и занятую память (байты)
func Usage() (float64, uint64) {
	var cpuPercent float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}

	var used uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		used = vm.Used
	}

	return cpuPercent, used
}
