package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/specialistvlad/gridci/internal/actions"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Ref is the reference steps use to invoke this action.
const Ref = "gridci/http-request@v1"

// maxBody is how much of the response body is copied to the step's output.
const maxBody = 64 << 10

// Module implements the actions.Module interface for this package.
type Module struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

var _ actions.Module = (*Module)(nil)

func (m *Module) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

// OnRunHttpRequest sends one request, typically a deploy hook. A non-2xx
// response, or one that differs from expect_status when set, fails the step.
func (m *Module) OnRunHttpRequest(ctx context.Context, inv *actions.Invocation) error {
	url, err := inv.String("url")
	if err != nil {
		return err
	}
	method, err := inv.String("method")
	if err != nil {
		return err
	}
	var body io.Reader
	if inv.Has("body") {
		s, err := inv.String("body")
		if err != nil {
			return err
		}
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if inv.Has("headers") {
		headers, err := inv.StringMap("headers")
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	if inv.Has("bearer_secret") {
		name, err := inv.String("bearer_secret")
		if err != nil {
			return err
		}
		token, ok := inv.Secrets.Get(name)
		if !ok {
			return fmt.Errorf("secret %q is not declared on the step", name)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request.", "method", req.Method, "url", url)

	resp, err := m.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response.", "status", resp.Status)
	fmt.Fprintf(inv.Stdout, "%s %s: %s\n", req.Method, url, resp.Status)
	if _, err := io.Copy(inv.Stdout, io.LimitReader(resp.Body, maxBody)); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	want, err := inv.Int("expect_status")
	if err != nil {
		return err
	}
	switch {
	case want != 0 && resp.StatusCode != want:
		return fmt.Errorf("unexpected status %s, expected %d", resp.Status, want)
	case want == 0 && (resp.StatusCode < 200 || resp.StatusCode > 299):
		return fmt.Errorf("request failed with status %s", resp.Status)
	}
	return nil
}

// Register registers the action.
func (m *Module) Register(r *actions.Registry) {
	r.Register(&actions.Definition{
		Ref:         Ref,
		Description: "Sends an HTTP request, optionally authenticated with a bearer secret.",
		Inputs: map[string]actions.Input{
			"url":           {Type: cty.String, Required: true},
			"method":        {Type: cty.String, Default: cty.StringVal(http.MethodGet)},
			"body":          {Type: cty.String},
			"headers":       {Type: cty.Map(cty.String)},
			"bearer_secret": {Type: cty.String},
			"expect_status": {Type: cty.Number, Default: cty.NumberIntVal(0)},
		},
		Handler: m.OnRunHttpRequest,
	})
}
