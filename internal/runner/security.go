package runner

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Tool containers run trusted first-party scanners, not arbitrary code, so
// the lockdown differs from a general sandbox: no seccomp filter (nmap and
// friends need raw sockets) and the network namespace is shared so tools can
// reach their targets. Everything else stays closed.
var (
	// CAP_NET_RAW for raw-socket scanners; nothing else.
	toolCapabilities = []string{"CAP_NET_RAW"}

	maskedKernelPaths = []string{
		"/proc/acpi",
		"/proc/kcore",
		"/proc/keys",
		"/proc/latency_stats",
		"/proc/timer_list",
		"/proc/timer_stats",
		"/proc/sched_debug",
		"/proc/scsi",
		"/sys/firmware",
	}

	readonlyKernelPaths = []string{
		"/proc/asound",
		"/proc/bus",
		"/proc/fs",
		"/proc/irq",
		"/proc/sys",
		"/proc/sysrq-trigger",
	}
)

// HardeningProfile locks down a tool container.
type HardeningProfile struct {
	Capabilities  []string
	MaskedPaths   []string
	ReadonlyPaths []string
}

func DefaultHardeningProfile() HardeningProfile {
	return HardeningProfile{
		Capabilities:  toolCapabilities,
		MaskedPaths:   maskedKernelPaths,
		ReadonlyPaths: readonlyKernelPaths,
	}
}

func ApplyHardeningProfile(spec *specs.Spec, profile HardeningProfile) {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Process == nil {
		spec.Process = &specs.Process{}
	}

	caps := &specs.LinuxCapabilities{
		Bounding:    profile.Capabilities,
		Effective:   profile.Capabilities,
		Inheritable: profile.Capabilities,
		Permitted:   profile.Capabilities,
		Ambient:     profile.Capabilities,
	}
	spec.Process.Capabilities = caps
	spec.Process.NoNewPrivileges = true

	spec.Linux.MaskedPaths = profile.MaskedPaths
	spec.Linux.ReadonlyPaths = profile.ReadonlyPaths

	if spec.Root != nil {
		spec.Root.Readonly = true
	}
}
