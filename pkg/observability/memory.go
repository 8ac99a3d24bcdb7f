package observability

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// RSSSampler reports the transfer process's resident set size on demand.
// Grounded on the teacher's resource monitor, which samples the same
// gopsutil process handle once at construction and reuses it.
type RSSSampler struct {
	proc *process.Process
}

// NewRSSSampler opens a handle onto the current process.
func NewRSSSampler() (*RSSSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &RSSSampler{proc: proc}, nil
}

// SampleRSS returns the current resident set size in bytes.
func (s *RSSSampler) SampleRSS() (uint64, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
