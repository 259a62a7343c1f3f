// Package domain holds the types shared by every layer of the exporter:
// the droplet record produced by the provider client and consumed by
// the registry and the job definitions, and the sentinel errors used
// to classify provider failures.
package domain

// Droplet is an immutable snapshot of one virtual machine as returned
// by a single successful registry refresh. A new refresh produces an
// entirely new set of Droplets; nothing here is mutated in place.
type Droplet struct {
	ID        int64
	Name      string
	Status    string
	MemoryMB  uint32
	VCPUCount uint32
	DiskGB    uint32
}
