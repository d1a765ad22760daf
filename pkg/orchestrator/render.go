package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nodeops/nodeops/pkg/classify"
)

// Host identifiers are inventory names, DNS names, IPv4 or bracketed IPv6
// addresses. Anything else could smuggle shell syntax into the command line.
var hostPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-\[\]]+$`)

func validateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty", classify.ErrInvalidHost)
	}
	if !hostPattern.MatchString(host) {
		return fmt.Errorf("%w: %q", classify.ErrInvalidHost, host)
	}
	return nil
}

// argEscaper makes a value safe inside a double-quoted shell word.
var argEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

func quoteArgs(args string) string {
	return `"` + argEscaper.Replace(args) + `"`
}

// module renders "<tool> <host> -m <name> [-a "<args>"]".
func (e *Engine) module(host, name, args string) string {
	cmd := fmt.Sprintf("%s %s -m %s", e.settings.Tool.Binary, host, name)
	if args != "" {
		cmd += " -a " + quoteArgs(args)
	}
	return cmd
}

func (e *Engine) pingCommand(host string) string {
	return e.module(host, "ping", "")
}

func (e *Engine) shellCommand(host, command string) string {
	return e.module(host, "command", command)
}

func (e *Engine) scriptCommand(host, script string, args ...string) string {
	return e.module(host, "script", strings.Join(append([]string{script}, args...), " "))
}

func (e *Engine) pushCommand(host, src, dst string) string {
	return e.module(host, "synchronize", fmt.Sprintf("src=%s dest=%s", src, dst))
}

func (e *Engine) pullCommand(host, src, dst string) string {
	return e.module(host, "synchronize", fmt.Sprintf("mode=pull src=%s dest=%s", src, dst))
}

func (e *Engine) toolCheckCommand() string {
	return fmt.Sprintf(`%s --version | grep "ansible.cfg"`, e.settings.Tool.Binary)
}
