package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rc-quote-api/internal/dto"
	"github.com/noah-isme/rc-quote-api/pkg/config"
)

func newTestSpamGuard() *SpamGuard {
	return NewSpamGuard(config.SpamConfig{
		BlockedIPs:       []string{"203.0.113.9"},
		BlockedEmails:    []string{"Spammer@Example.com"},
		SpamWords:        []string{"casino", "click here"},
		TempEmailDomains: []string{"mailinator.com"},
	})
}

func TestSpamGuardBlockedIP(t *testing.T) {
	g := newTestSpamGuard()
	require.True(t, g.IPBlocked("203.0.113.9"))
	require.False(t, g.IPBlocked("203.0.113.10"))
}

func TestSpamGuardInspect(t *testing.T) {
	g := newTestSpamGuard()
	clean := dto.QuoteRequest{Name: "Ana", Email: "ana@example.com", Address: "Rua A, 10", Message: "Preciso reformar a cozinha"}
	require.Empty(t, g.Inspect(clean))

	cases := map[string]dto.QuoteRequest{
		"blocked email":  {Email: "spammer@example.com"},
		"temp domain":    {Email: "x@MAILINATOR.com"},
		"word":           {Email: "a@b.com", Message: "Visit our CASINO today"},
		"phrase spacing": {Email: "a@b.com", Message: "please click   here now"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			require.Len(t, g.Inspect(req), 1)
		})
	}
}

func TestSpamGuardMatchesWholeWordsOnly(t *testing.T) {
	g := newTestSpamGuard()
	req := dto.QuoteRequest{Email: "a@b.com", Message: "Casinova construction"}
	require.Empty(t, g.Inspect(req))
}
