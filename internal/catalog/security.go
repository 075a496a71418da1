// ABOUTME: Best-effort static scan for hardcoded credentials in packaged skill files
// ABOUTME: Deliberately conservative: a handful of high-confidence patterns, not a full secret scanner

package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// credentialPatterns flags the shapes of secret that show up by accident in
// skill packages most often: provider API keys and private key blocks.
// This is a best-effort net, not a substitute for a real secrets scanner.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                       // AWS access key id
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),                     // generic "sk-" API key
	regexp.MustCompile(`-----BEGIN (RSA|EC|OPENSSH|DSA) PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*[:=]\s*['"][^'"\s]{8,}['"]`),
}

const maxScanFileBytes = maxFileBytes

// scanForCredentials inspects every enumerated text-ish file for hardcoded
// credential patterns and refuses the package if any match.
func scanForCredentials(root string, files FileManifest) error {
	for _, list := range [][]FileEntry{files.Scripts, files.References, files.Assets} {
		for _, entry := range list {
			if entry.Size > maxScanFileBytes {
				continue
			}
			path := filepath.Join(root, entry.Path)
			data, err := readLimitedScan(path)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", entry.Path, err)
			}
			if looksLikeBinary(data) {
				continue
			}
			for _, pattern := range credentialPatterns {
				if pattern.Match(data) {
					return fmt.Errorf("file %q appears to contain a hardcoded credential", entry.Path)
				}
			}
		}
	}
	return nil
}

func readLimitedScan(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxScanFileBytes+1))
}

// looksLikeBinary uses the same heuristic as many text-diffing tools: a NUL
// byte in the first chunk means "don't bother treating this as text".
func looksLikeBinary(data []byte) bool {
	limit := len(data)
	if limit > 8000 {
		limit = 8000
	}
	for _, b := range data[:limit] {
		if b == 0 {
			return true
		}
	}
	return false
}
