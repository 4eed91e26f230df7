package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/vyrodovalexey/eogate/internal/auth"
	"github.com/vyrodovalexey/eogate/internal/config"
)

const redacted = "REDACTED"

// Exit codes of a one-shot check.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// checkResult is the outcome of authenticating one provider.
type checkResult struct {
	provider string
	scheme   string
	signer   auth.RequestSigner
	err      error
}

// check authenticates provider, or every provider when provider is empty.
func (app *application) check(ctx context.Context, provider string) ([]checkResult, error) {
	if provider != "" {
		scheme, ok := app.coordinator.Get(provider)
		if !ok {
			return nil, fmt.Errorf("%w: %s", auth.ErrProviderNotFound, provider)
		}
		signer, err := app.coordinator.Authenticate(ctx, provider)
		return []checkResult{{provider: provider, scheme: scheme.Type(), signer: signer, err: err}}, nil
	}

	signers, errs := app.coordinator.AuthenticateAll(ctx)
	names := app.coordinator.Providers()
	results := make([]checkResult, 0, len(names))
	for _, name := range names {
		r := checkResult{provider: name, signer: signers[name], err: errs[name]}
		if scheme, ok := app.coordinator.Get(name); ok {
			r.scheme = scheme.Type()
		}
		results = append(results, r)
	}
	return results, nil
}

// runOnce performs a single check, writes the report to out and returns
// the process exit code.
func runOnce(ctx context.Context, app *application, flags cliFlags, out io.Writer) int {
	if flags.signURL != "" && flags.provider == "" {
		fmt.Fprintln(out, "-sign-url requires -provider")
		return exitUsage
	}

	results, err := app.check(ctx, flags.provider)
	if err != nil {
		fmt.Fprintln(out, err)
		return exitUsage
	}

	writeReport(out, results)

	code := exitOK
	for _, r := range results {
		if r.err != nil {
			code = exitFailed
		}
	}

	if flags.signURL != "" && results[0].err == nil {
		req, err := signURL(ctx, results[0].signer, flags.signURL)
		if err != nil {
			fmt.Fprintf(out, "\nsigning failed: %v\n", err)
			return exitFailed
		}
		writeSignedRequest(out, req)
	}

	return code
}

// writeReport prints one line per provider.
func writeReport(out io.Writer, results []checkResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSCHEME\tSTATUS\tDETAIL")
	for _, r := range results {
		status, detail := "ok", describeSigner(r.signer)
		if r.err != nil {
			status, detail = "failed", r.err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.provider, r.scheme, status, detail)
	}
	_ = w.Flush()
}

// describeSigner names how a signer authenticates requests without
// revealing the credential itself.
func describeSigner(signer auth.RequestSigner) string {
	switch s := signer.(type) {
	case *auth.TokenSigner:
		if s.Provision() == config.TokenProvisionQuery {
			return "token in query parameter " + s.Key()
		}
		return "bearer token in Authorization header"
	case *auth.QueryStringSigner:
		return "credentials in query string"
	case *auth.SASSigner:
		return "URL signed per request"
	default:
		return "custom signer"
	}
}

// signURL signs a GET request for rawURL.
func signURL(ctx context.Context, signer auth.RequestSigner, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if err := signer.Sign(req); err != nil {
		return nil, err
	}
	return req, nil
}

// writeSignedRequest prints the signed request with every query value and
// header value redacted.
func writeSignedRequest(out io.Writer, req *http.Request) {
	fmt.Fprintf(out, "\nsigned request:\n  %s %s\n", req.Method, redactURL(req.URL))
	for _, line := range redactHeaders(req.Header) {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

// redactURL returns u with the value of every query parameter replaced,
// keeping parameter order.
func redactURL(u *url.URL) string {
	out := *u
	out.User = nil
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, seg := range parts {
			key, _, _ := strings.Cut(seg, "=")
			parts[i] = key + "=" + redacted
		}
		out.RawQuery = strings.Join(parts, "&")
	}
	return out.String()
}

// redactHeaders returns sorted "Name: REDACTED" lines.
func redactHeaders(h http.Header) []string {
	lines := make([]string, 0, len(h))
	for name := range h {
		lines = append(lines, name+": "+redacted)
	}
	sort.Strings(lines)
	return lines
}
