package routing

import (
	"strings"

	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

// Level grades complexity and risk of a changeset.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Requirements is the deterministic analysis of a triggering event: how
// complex and risky the change looks and which workers it calls for.
type Requirements struct {
	Complexity       Level    `json:"complexity"`
	Risk             Level    `json:"risk"`
	Workers          []string `json:"workers"`
	EstimatedWorkers int      `json:"estimated_workers"`
}

// codeExts are extensions that mark a changeset as containing code, which
// always pulls in the security worker.
var codeExts = map[string]bool{
	".go": true, ".py": true, ".java": true, ".rb": true, ".rs": true,
	".c": true, ".cc": true, ".cpp": true, ".h": true, ".hpp": true,
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".php": true, ".cs": true, ".kt": true, ".swift": true, ".scala": true,
}

// scriptExts route to the quality worker (lint/style/test coverage focus).
var scriptExts = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
}

// docExts route to the documentation worker.
var docExts = map[string]bool{
	".md": true, ".rst": true, ".adoc": true, ".txt": true,
}

var highRiskKeywords = []string{
	"security", "vulnerability", "auth", "credential", "secret",
	"payment", "encryption", "exploit",
}

var mediumRiskKeywords = []string{"fix", "bug", "hotfix", "patch"}

// productionBranches are branch names treated as high risk on their own.
var productionBranches = map[string]bool{
	"main": true, "master": true, "production": true, "prod": true,
}

// IsProductionBranch reports whether branch targets a production line.
// Release and hotfix branches count.
func IsProductionBranch(branch string) bool {
	if productionBranches[branch] {
		return true
	}
	return strings.HasPrefix(branch, "release/") || strings.HasPrefix(branch, "hotfix/")
}

// Analyze derives the routing requirements for an event. Complexity comes
// from the size and extension spread of the changeset, risk from message
// keywords and the target branch, and the worker set from per-extension
// heuristics. The returned worker list is never empty.
func Analyze(ev *trigger.Event) Requirements {
	exts := ev.Extensions()
	files := ev.FileCount()
	msg := strings.ToLower(ev.Message)

	req := Requirements{
		Complexity: complexityOf(files, len(exts)),
		Risk:       riskOf(msg, ev.Branch),
	}

	var hasCode, hasScript, hasDocs bool
	for _, ext := range exts {
		if codeExts[ext] {
			hasCode = true
		}
		if scriptExts[ext] {
			hasScript = true
		}
		if docExts[ext] {
			hasDocs = true
		}
	}
	for _, p := range ev.Paths() {
		lp := strings.ToLower(p)
		if strings.Contains(lp, "docs/") || strings.Contains(lp, "api/") {
			hasDocs = true
		}
	}

	// Priority order keeps the worker list deterministic.
	if hasCode {
		req.Workers = append(req.Workers, worker.Security)
	}
	if hasScript {
		req.Workers = append(req.Workers, worker.Quality)
	}
	if files > 15 || strings.Contains(msg, "architecture") {
		req.Workers = append(req.Workers, worker.Architecture)
	}
	if hasDocs {
		req.Workers = append(req.Workers, worker.Documentation)
	}
	if len(req.Workers) == 0 {
		req.Workers = append(req.Workers, worker.Quality)
	}

	req.EstimatedWorkers = len(req.Workers)
	return req
}

func complexityOf(files, distinctExts int) Level {
	switch {
	case files > 20 || distinctExts > 4:
		return LevelHigh
	case files > 5 || distinctExts > 2:
		return LevelMedium
	default:
		return LevelLow
	}
}

func riskOf(message, branch string) Level {
	for _, kw := range highRiskKeywords {
		if strings.Contains(message, kw) {
			return LevelHigh
		}
	}
	if IsProductionBranch(branch) {
		return LevelHigh
	}
	for _, kw := range mediumRiskKeywords {
		if strings.Contains(message, kw) {
			return LevelMedium
		}
	}
	return LevelLow
}
