package runner

import (
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"recon-orchestrator/internal/tier"
)

// ResourceLimits constrains a containerized tool run.
type ResourceLimits struct {
	CPUShares int64 `json:"cpu_shares"` // 1024 = 1 CPU core
	MemoryMB  int64 `json:"memory_mb"`
	PidsLimit int64 `json:"pids_limit"`
	DiskMB    int64 `json:"disk_mb"` // tmpfs size for /tmp
}

// LimitsForPlan maps a plan to the container resource ceiling its runs get.
func LimitsForPlan(plan tier.Plan) ResourceLimits {
	if plan == tier.PlanPaid {
		return ResourceLimits{
			CPUShares: 2048,
			MemoryMB:  1024,
			PidsLimit: 200,
			DiskMB:    512,
		}
	}
	return ResourceLimits{
		CPUShares: 512,
		MemoryMB:  256,
		PidsLimit: 50,
		DiskMB:    100,
	}
}

func (rl ResourceLimits) Validate() error {
	if rl.CPUShares < 2 || rl.CPUShares > 4096 {
		return fmt.Errorf("cpu_shares must be 2-4096, got %d", rl.CPUShares)
	}
	if rl.MemoryMB < 16 || rl.MemoryMB > 4096 {
		return fmt.Errorf("memory_mb must be 16-4096, got %d", rl.MemoryMB)
	}
	if rl.PidsLimit < 5 || rl.PidsLimit > 1000 {
		return fmt.Errorf("pids_limit must be 5-1000, got %d", rl.PidsLimit)
	}
	if rl.DiskMB < 1 || rl.DiskMB > 2048 {
		return fmt.Errorf("disk_mb must be 1-2048, got %d", rl.DiskMB)
	}
	return nil
}

// ApplyResourceLimits writes the limits into an OCI runtime spec. CPU is
// capped via CFS quota rather than shares: period=100ms, quota scaled from
// CPUShares where 1024 shares = one full core.
func ApplyResourceLimits(spec *specs.Spec, limits ResourceLimits) {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Linux.Resources == nil {
		spec.Linux.Resources = &specs.LinuxResources{}
	}

	period := uint64(100000)
	quota := int64(float64(limits.CPUShares) / 1024.0 * float64(period))
	if quota < 1000 {
		quota = 1000
	}
	spec.Linux.Resources.CPU = &specs.LinuxCPU{
		Period: &period,
		Quota:  &quota,
	}

	memoryBytes := limits.MemoryMB * 1024 * 1024
	spec.Linux.Resources.Memory = &specs.LinuxMemory{
		Limit: &memoryBytes,
		Swap:  &memoryBytes,
	}

	spec.Linux.Resources.Pids = &specs.LinuxPids{
		Limit: limits.PidsLimit,
	}

	tmpfsBytes := limits.DiskMB * 1024 * 1024
	spec.Mounts = appendIfNotExists(spec.Mounts, specs.Mount{
		Destination: "/tmp",
		Type:        "tmpfs",
		Source:      "tmpfs",
		Options: []string{
			"nosuid", "nodev",
			fmt.Sprintf("size=%d", tmpfsBytes),
			"mode=1777",
		},
	})

	spec.Process.Rlimits = []specs.POSIXRlimit{
		{Type: "RLIMIT_NOFILE", Hard: 1024, Soft: 1024},
		{Type: "RLIMIT_NPROC", Hard: safeUint64(limits.PidsLimit), Soft: safeUint64(limits.PidsLimit)},
		{Type: "RLIMIT_FSIZE", Hard: safeUint64(tmpfsBytes), Soft: safeUint64(tmpfsBytes)},
		{Type: "RLIMIT_CORE", Hard: 0, Soft: 0},
	}
}

func safeUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func appendIfNotExists(mounts []specs.Mount, m specs.Mount) []specs.Mount {
	for _, existing := range mounts {
		if existing.Destination == m.Destination {
			return mounts
		}
	}
	return append(mounts, m)
}
