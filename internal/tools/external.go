package tools

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// ExternalCollaborators wraps the optional external code-search / web
// services behind a circuit breaker, grounded on
// other_examples/.../matheusfly-AI-Obsidian-API's go-resty+sony/gobreaker
// pairing for resilient outbound calls. When a base URL is not
// configured, handlers return the structured "not available" error spec
// §1/§4.8 describes rather than failing the whole batch.
type ExternalCollaborators struct {
	codeClient *resty.Client
	webClient  *resty.Client
	codeBreaker *gobreaker.CircuitBreaker
	webBreaker  *gobreaker.CircuitBreaker
}

func NewExternalCollaborators(codeSearchBaseURL, webFetchBaseURL string) *ExternalCollaborators {
	e := &ExternalCollaborators{}
	if codeSearchBaseURL != "" {
		e.codeClient = resty.New().SetBaseURL(codeSearchBaseURL).SetTimeout(30 * time.Second)
		e.codeBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "code-collaborator",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
		})
	}
	if webFetchBaseURL != "" {
		e.webClient = resty.New().SetBaseURL(webFetchBaseURL).SetTimeout(60 * time.Second)
		e.webBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "web-collaborator",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     60 * time.Second,
		})
	}
	return e
}

const notAvailable = "not available"

// CodeCollaborator proxies search_code/find_definition/find_references/
// get_repo_map to the external code-search service, returning a
// structured "not available" error if none is configured (spec §1).
func (e *ExternalCollaborators) CodeCollaborator(ctx context.Context, tool string, args map[string]any) (any, error) {
	if e == nil || e.codeClient == nil {
		return map[string]any{"error": notAvailable}, nil
	}
	result, err := e.codeBreaker.Execute(func() (any, error) {
		var body map[string]any
		resp, err := e.codeClient.R().SetContext(ctx).SetBody(args).SetResult(&body).Post("/" + tool)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &httpStatusError{resp.StatusCode()}
		}
		return body, nil
	})
	if err != nil {
		return map[string]any{"error": notAvailable}, nil
	}
	return result, nil
}

func (e *ExternalCollaborators) WebSearch(ctx context.Context, args map[string]any) (any, error) {
	return e.webCall(ctx, "search", args)
}

func (e *ExternalCollaborators) WebFetch(ctx context.Context, args map[string]any) (any, error) {
	return e.webCall(ctx, "fetch", args)
}

func (e *ExternalCollaborators) webCall(ctx context.Context, path string, args map[string]any) (any, error) {
	if e == nil || e.webClient == nil {
		return map[string]any{"error": notAvailable}, nil
	}
	result, err := e.webBreaker.Execute(func() (any, error) {
		var body map[string]any
		resp, err := e.webClient.R().SetContext(ctx).SetBody(args).SetResult(&body).Post("/" + path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &httpStatusError{resp.StatusCode()}
		}
		return body, nil
	})
	if err != nil {
		return map[string]any{"error": notAvailable}, nil
	}
	return result, nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return "external collaborator returned a non-2xx status"
}
