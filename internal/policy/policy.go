// Package policy guards outbound fetches made on behalf of viewer
// clients. The proxy endpoint would otherwise be an open relay, so
// every URL passes a built-in private-address check plus a
// configurable CEL expression before it is fetched.
package policy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// DefaultExpression admits the public Kroki service and its
// subdomains. Deployments widen this through ExtraHosts or replace it
// with their own expression.
const DefaultExpression = `host == "kroki.io" || host.endsWith(".kroki.io")`

// Policy decides whether a URL may be fetched through the proxy.
// Thread-safe: the compiled program is immutable after New.
type Policy struct {
	expression   string
	prg          cel.Program
	allowPrivate bool
}

// Options configures New. The zero value uses DefaultExpression and
// blocks private addresses.
type Options struct {
	// Expression is a CEL expression over the variables url, scheme,
	// host and port, all strings. It must evaluate to a bool.
	Expression string
	// ExtraHosts lists additional hosts to admit alongside the
	// expression. Each host matches exactly and by subdomain, the same
	// way the default treats kroki.io.
	ExtraHosts []string
	// AllowPrivate skips the loopback/private/link-local address
	// check. Meant for development against a local Kroki container.
	AllowPrivate bool
}

// New compiles the policy expression. A compile failure is reported
// eagerly so a bad config does not surface as per-request errors.
func New(opts Options) (*Policy, error) {
	expression := opts.Expression
	if expression == "" {
		expression = DefaultExpression
	}
	expression = combineHosts(expression, opts.ExtraHosts)

	env, err := cel.NewEnv(
		cel.Variable("url", cel.StringType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("port", cel.StringType),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "create CEL environment: %s", err.Error()).WithCause(err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"policy compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"policy program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return &Policy{expression: expression, prg: prg, allowPrivate: opts.AllowPrivate}, nil
}

// combineHosts widens expr with an OR clause per extra host. Hosts
// are quoted into CEL string literals, so config values cannot inject
// expression fragments.
func combineHosts(expr string, hosts []string) string {
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		expr = fmt.Sprintf("%s || host == %s || host.endsWith(%s)",
			expr, strconv.Quote(h), strconv.Quote("."+h))
	}
	return expr
}

// Expression returns the active policy expression.
func (p *Policy) Expression() string {
	return p.expression
}

// Check returns nil when rawURL may be fetched, or a POLICY_DENIED
// error explaining the refusal.
func (p *Policy) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePolicy, "url is not parseable: %s", err.Error()).
			WithPath(rawURL).WithCause(err)
	}
	host := u.Hostname()
	if host == "" {
		return schema.NewError(schema.ErrCodePolicy, "url has no host").WithPath(rawURL)
	}

	if !p.allowPrivate && isPrivateHost(host) {
		return schema.NewError(schema.ErrCodePolicy, "private address blocked by proxy policy").
			WithPath(rawURL).
			WithDetails(map[string]any{"host": host})
	}

	out, _, err := p.prg.Eval(map[string]any{
		"url":    rawURL,
		"scheme": u.Scheme,
		"host":   host,
		"port":   u.Port(),
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePolicy,
			"policy evaluation failed for %q: %s", p.expression, err.Error()).
			WithPath(rawURL).WithCause(err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return schema.NewErrorf(schema.ErrCodePolicy,
			"policy expression %q must yield a bool, got %T", p.expression, out.Value()).
			WithPath(rawURL)
	}
	if !allowed {
		return schema.NewError(schema.ErrCodePolicy, "url blocked by proxy policy").
			WithPath(rawURL).
			WithDetails(map[string]any{"host": host, "expression": p.expression})
	}
	return nil
}

// isPrivateHost reports whether host is a literal address in a
// loopback, private, link-local or unspecified range, or the
// localhost name. Hostnames that merely resolve to such addresses are
// not caught here; deployments that need that tighten Expression
// instead.
func isPrivateHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
