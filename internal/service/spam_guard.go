package service

import (
	"regexp"
	"strings"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/pkg/config"
)

// SpamGuard applies the static anti-spam lists to a submission.
type SpamGuard struct {
	blockedIPs    map[string]struct{}
	blockedEmails map[string]struct{}
	tempDomains   map[string]struct{}
	spamWords     []*regexp.Regexp
}

// NewSpamGuard compiles the configured lists.
func NewSpamGuard(cfg config.SpamConfig) *SpamGuard {
	g := &SpamGuard{
		blockedIPs:    toSet(cfg.BlockedIPs, false),
		blockedEmails: toSet(cfg.BlockedEmails, true),
		tempDomains:   toSet(cfg.TempEmailDomains, true),
	}
	for _, word := range cfg.SpamWords {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		pattern := `(?i)\b` + strings.Join(strings.Fields(regexp.QuoteMeta(word)), `\s+`) + `\b`
		g.spamWords = append(g.spamWords, regexp.MustCompile(pattern))
	}
	return g
}

// IPBlocked reports whether the client address is on the block list.
func (g *SpamGuard) IPBlocked(ip string) bool {
	_, ok := g.blockedIPs[ip]
	return ok
}

// Inspect returns one reason per rule the request violates.
func (g *SpamGuard) Inspect(req dto.QuoteRequest) []string {
	var reasons []string
	email := strings.ToLower(req.Email)
	if _, ok := g.blockedEmails[email]; ok {
		reasons = append(reasons, "this e-mail address is not accepted")
	}
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		if _, ok := g.tempDomains[email[at+1:]]; ok {
			reasons = append(reasons, "temporary e-mail addresses are not accepted")
		}
	}
	text := strings.Join([]string{req.Name, req.Address, req.Message}, "\n")
	for _, re := range g.spamWords {
		if re.MatchString(text) {
			reasons = append(reasons, "the message contains content flagged as spam")
			break
		}
	}
	return reasons
}

func toSet(values []string, lower bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
