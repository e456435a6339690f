package preflight

import (
	"fmt"
	"os"
	"strings"

	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

// CheckDump verifies the configured dump file exists and carries a
// supported extension. An unset dump is a warning, not a failure:
// retrieve, eval, and status work against existing stores.
func (c *Checker) CheckDump() CheckResult {
	result := CheckResult{
		Name:     "dump_file",
		Required: true,
	}

	path := c.cfg.Dump.Path
	if path == "" {
		result.Status = StatusWarn
		result.Required = false
		result.Message = "no dump configured"
		result.Details = "Set dump.path before running 'wikidex ingest'"
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", path, err)
		return result
	}
	if info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is a directory", path)
		return result
	}

	if !hasDumpExtension(path) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s has an unsupported extension", path)
		result.Details = "Supported formats are .json, .json.gz, and .json.bz2"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", path, ui.FormatBytes(info.Size()))
	return result
}

func hasDumpExtension(path string) bool {
	for _, ext := range []string{".json", ".json.gz", ".json.bz2"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
