package safety

import (
	"strings"

	"holly/internal/types"
)

// Risk classification buckets. Paths are matched by prefix; extension
// namespaces by directory under src/.
var (
	lowRiskPrefixes = []string{
		"tests/",
		"test/",
		"docs/",
		"doc/",
	}

	// Extension namespaces where holly is expected to grow itself: new
	// files here are routine additions, not core surgery.
	extensionPrefixes = []string{
		"src/tools/",
		"src/workflows/",
		"src/integrations/",
	}

	coreSourcePrefix = "src/"
)

// classifyFile scores a single file operation.
func classifyFile(f types.FileOp) types.RiskLevel {
	for _, p := range lowRiskPrefixes {
		if strings.HasPrefix(f.Path, p) {
			return types.RiskLow
		}
	}

	if f.Action == types.ActionCreate {
		for _, p := range extensionPrefixes {
			if strings.HasPrefix(f.Path, p) {
				return types.RiskMedium
			}
		}
	}

	if strings.HasPrefix(f.Path, coreSourcePrefix) {
		// Touching existing core source is the dangerous case; a create
		// that lands outside the extension namespaces is still notable.
		if f.Action == types.ActionUpdate || f.Action == types.ActionDelete {
			return types.RiskHigh
		}
		return types.RiskMedium
	}

	return types.RiskLow
}

// ClassifyRisk scores a set of file operations. The aggregate is the maximum
// risk across files: one dangerous file makes the whole change dangerous.
func ClassifyRisk(files []types.FileOp) types.RiskLevel {
	risk := types.RiskLow
	for _, f := range files {
		risk = risk.Max(classifyFile(f))
	}
	return risk
}
