package safety

import (
	"regexp"

	"holly/internal/types"
)

// secretSignature pairs a compiled pattern with the label reported in the
// reject reason.
type secretSignature struct {
	label   string
	pattern *regexp.Regexp
}

// Signature table, evaluated in order. The first match across all files wins,
// so put the cheapest and most common patterns first.
var secretSignatures = []secretSignature{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)aws.{0,20}(secret|private).{0,20}['"][0-9a-zA-Z/+=]{40}['"]`)},
	{"stripe_live_key", regexp.MustCompile(`sk_live_[0-9a-zA-Z]{24,}`)},
	{"slack_bot_token", regexp.MustCompile(`xox[bporas]-[0-9A-Za-z\-]{10,}`)},
	{"github_token", regexp.MustCompile(`gh[pousr]_[0-9A-Za-z]{36,}`)},
	{"npm_token", regexp.MustCompile(`npm_[0-9A-Za-z]{36}`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"generic_api_key", regexp.MustCompile(`(?i)(api[_-]?key|auth[_-]?token)['"]?\s*[:=]\s*['"][0-9a-zA-Z\-_]{20,}['"]`)},
}

// secretScanner matches file content against the signature table.
type secretScanner struct {
	signatures []secretSignature
}

func newSecretScanner() *secretScanner {
	return &secretScanner{signatures: secretSignatures}
}

// scan returns the first signature match across all files, if any. Deleted
// files carry no content and are skipped implicitly.
func (s *secretScanner) scan(files []types.FileOp) (types.RejectReason, bool) {
	for _, f := range files {
		if f.Content == "" {
			continue
		}
		for _, sig := range s.signatures {
			if sig.pattern.MatchString(f.Content) {
				return types.SecretDetected(sig.label), true
			}
		}
	}
	return "", false
}
