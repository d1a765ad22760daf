package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nodeops/nodeops/pkg/classify"
)

func TestValidateHost(t *testing.T) {
	tests := map[string]struct {
		host   string
		expErr bool
	}{
		"IPv4 should be valid.":            {host: "10.0.0.5"},
		"DNS name should be valid.":        {host: "node-1.chain.internal"},
		"Inventory group should be valid.": {host: "webase_nodes"},
		"Bracketed IPv6 should be valid.":  {host: "[fe80::1]"},
		"Empty should be invalid.":         {host: "", expErr: true},
		"Whitespace should be invalid.":    {host: "10.0.0.5 10.0.0.6", expErr: true},
		"Semicolon should be invalid.":     {host: "10.0.0.5;id", expErr: true},
		"Substitution should be invalid.":  {host: "$(id)", expErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := validateHost(tc.host)
			if tc.expErr {
				assert.ErrorIs(t, err, classify.ErrInvalidHost)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuoteArgs(t *testing.T) {
	tests := map[string]struct {
		args string
		exp  string
	}{
		"Plain text should only be wrapped.": {
			args: "mkdir -p /data",
			exp:  `"mkdir -p /data"`,
		},
		"Shell metacharacters should be escaped.": {
			args: "echo \"$HOME\" `id` \\n",
			exp:  `"echo \"\$HOME\" \` + "`id\\`" + ` \\n"`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.exp, quoteArgs(tc.args))
		})
	}
}
