package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

// MinDiskSpaceBytes is the free-space floor when no dump is
// configured (256 MB).
const MinDiskSpaceBytes = 256 * 1024 * 1024

// CheckDataDir verifies the data directory is writable, creating it
// if absent.
func (c *Checker) CheckDataDir() CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
	}

	dir := c.cfg.Stores.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	probe := filepath.Join(dir, ".wikidex-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckDiskSpace verifies free space at the data directory. With a
// dump configured the stores need room in the dump's own order of
// magnitude, so the requirement scales with the dump size.
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.cfg.Stores.Dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)

	needed := int64(MinDiskSpaceBytes)
	if c.cfg.Dump.Path != "" {
		if info, err := os.Stat(c.cfg.Dump.Path); err == nil && info.Size() > needed {
			needed = info.Size()
		}
	}

	if available < needed {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s free (need %s)",
			ui.FormatBytes(available), ui.FormatBytes(needed))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s free (need %s)",
		ui.FormatBytes(available), ui.FormatBytes(needed))
	return result
}

// MinFileDescriptors is the open-file floor. The keyword index keeps
// many segment files open at once.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the process file descriptor limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
		result.Details = "Raise it with 'ulimit -n 4096'"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	return result
}
