// Package safety implements the policy gate every self-modification proposal
// must pass before any remote mutation happens: forbidden-path checks, rate
// limiting, secret scanning, and risk classification.
package safety

import (
	"strings"

	"go.uber.org/zap"

	"holly/internal/config"
	"holly/internal/types"
)

// Gate validates proposed changes against policy. Validation is pure except
// for the rate limiter, which records a proposal only after every check has
// passed; a rejected proposal never consumes budget.
type Gate struct {
	cfg     config.SafetyConfig
	limiter *rateLimiter
	scanner *secretScanner
	logger  *zap.Logger
}

// NewGate builds a gate from policy config. A nil logger is replaced with a
// no-op logger.
func NewGate(cfg config.SafetyConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:     cfg,
		limiter: newRateLimiter(cfg),
		scanner: newSecretScanner(),
		logger:  logger,
	}
}

// IsForbidden checks one path against the forbidden and principal-only sets.
// First match wins; forbidden prefixes are evaluated before principal-only
// exact paths.
func (g *Gate) IsForbidden(path string) (types.RejectReason, bool) {
	for _, prefix := range g.cfg.ForbiddenPrefixes {
		if strings.HasPrefix(path, prefix) {
			return types.ReasonForbiddenFile, true
		}
	}
	for _, reserved := range g.cfg.PrincipalOnlyPaths {
		if path == reserved {
			return types.ReasonPrincipalOnly, true
		}
	}
	return "", false
}

// Validate runs the full policy sequence: forbidden paths (per file, fail
// fast), rate limits, content scan, then risk classification. Only a fully
// approved proposal is recorded into the limiter.
func (g *Gate) Validate(change types.ProposedChange) types.ValidationVerdict {
	for _, f := range change.Files {
		if reason, hit := g.IsForbidden(f.Path); hit {
			g.logger.Warn("proposal rejected",
				zap.String("branch", change.BranchName),
				zap.String("path", f.Path),
				zap.String("reason", string(reason)))
			return types.Rejected(reason)
		}
	}

	if reason, hit := g.scanner.scan(change.Files); hit {
		g.logger.Warn("proposal rejected",
			zap.String("branch", change.BranchName),
			zap.String("reason", string(reason)))
		return types.Rejected(reason)
	}

	// The limiter goes last, after every pure check: reserve checks the
	// volume limits and consumes a budget slot in one critical section, so
	// concurrent proposals cannot all pass before any of them is counted.
	if reason, hit := g.limiter.reserve(change.Files); hit {
		g.logger.Warn("proposal rejected",
			zap.String("branch", change.BranchName),
			zap.String("reason", string(reason)))
		return types.Rejected(reason)
	}

	risk := ClassifyRisk(change.Files)

	g.logger.Info("proposal approved",
		zap.String("branch", change.BranchName),
		zap.Int("files", len(change.Files)),
		zap.String("risk", string(risk)))
	return types.Approved(risk)
}
