package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
)

const serverVersion = "0.1.0"

// fixedScope is the scope set sent upstream on the authorize leg. Clients
// send scopes the identity provider does not know about; theirs are
// ignored and this set always wins.
const fixedScopeFormat = "api://%s/mcp.profile.read openid profile offline_access"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

// HTTPDeps holds dependencies for the hosted HTTP surface.
type HTTPDeps struct {
	MCP  *server.MCPServer
	Auth *Authenticator

	BaseURL        string
	RedirectPrefix string
	TenantID       string
	ClientID       string
	ClientSecret   string

	// Authority is the identity provider origin; defaults to the Entra
	// endpoint for TenantID. Overridable for tests.
	Authority  string
	HTTPClient *http.Client
}

// NewHandler builds the hosted router: the bearer-gated MCP endpoint, the
// health check, and the OAuth discovery and proxy endpoints the MCP client
// expects to find on the server itself.
func NewHandler(deps HTTPDeps) http.Handler {
	if deps.Authority == "" {
		deps.Authority = "https://login.microsoftonline.com/" + deps.TenantID
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	deps.BaseURL = strings.TrimSuffix(deps.BaseURL, "/")

	// Tool handlers resolve their storage namespace from the context; carry
	// the identity the auth middleware bound to the request.
	streamable := server.NewStreamableHTTPServer(deps.MCP,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if uid, ok := UserIDFrom(r.Context()); ok {
				return WithUserID(ctx, uid)
			}
			return ctx
		}),
	)

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/authorize", handleAuthorize(deps))
	r.Post("/token", handleToken(deps))

	r.HandleFunc("/.well-known/oauth-protected-resource/mcp", handleProtectedResourceMetadata(deps))
	r.HandleFunc("/.well-known/oauth-authorization-server", handleAuthorizationServerMetadata(deps))

	r.Handle("/mcp", deps.Auth.Middleware(streamable))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": serverVersion,
		"service": "memoryd",
	})
}

func handleProtectedResourceMetadata(deps HTTPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r) {
			return
		}
		writeDiscovery(w, map[string]any{
			"resource":              deps.BaseURL + "/mcp",
			"authorization_servers": []string{deps.BaseURL},
			"scopes_supported":      []string{fmt.Sprintf("api://%s/mcp.profile.read", deps.ClientID)},
			"resource_name":         "memoryd MCP server",
		})
	}
}

func handleAuthorizationServerMetadata(deps HTTPDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handleCORSPreflight(w, r) {
			return
		}
		writeDiscovery(w, map[string]any{
			"issuer":                           fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", deps.TenantID),
			"authorization_endpoint":           deps.BaseURL + "/authorize",
			"token_endpoint":                   deps.BaseURL + "/token",
			"response_types_supported":         []string{"code"},
			"grant_types_supported":            []string{"authorization_code", "refresh_token"},
			"code_challenge_methods_supported": []string{"S256"},
			"scopes_supported":                 []string{fmt.Sprintf("api://%s/mcp.profile.read", deps.ClientID)},
		})
	}
}

func handleCORSPreflight(w http.ResponseWriter, r *http.Request) bool {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func writeDiscovery(w http.ResponseWriter, doc map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	json.NewEncoder(w).Encode(doc)
}

// handleAuthorize redirects the client to the identity provider's
// authorize endpoint, substituting this server's client id and scope set.
// redirect_uri is checked against the configured allow-list prefix.
func handleAuthorize(deps HTTPDeps) http.HandlerFunc {
	forward := []string{"response_type", "redirect_uri", "state", "code_challenge", "code_challenge_method"}
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		if redirect := params.Get("redirect_uri"); redirect != "" && !strings.HasPrefix(redirect, deps.RedirectPrefix) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "redirect_uri %q is not allowed", redirect)
			return
		}

		upstream, err := url.Parse(deps.Authority + "/oauth2/v2.0/authorize")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "building authorize URL: %v", err)
			return
		}
		q := upstream.Query()
		for _, name := range forward {
			if v := params.Get(name); v != "" {
				q.Set(name, v)
			}
		}
		q.Set("client_id", deps.ClientID)
		q.Set("scope", fmt.Sprintf(fixedScopeFormat, deps.ClientID))
		upstream.RawQuery = q.Encode()

		slog.Debug("authorize redirect", "location", upstream.Host)
		http.Redirect(w, r, upstream.String(), http.StatusFound)
	}
}

// handleToken proxies the token exchange to the identity provider with
// this server's client credentials and relays the response verbatim.
func handleToken(deps HTTPDeps) http.HandlerFunc {
	forward := []string{"grant_type", "code", "redirect_uri", "code_verifier", "refresh_token", "scope"}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "parsing form body: %v", err)
			return
		}

		upstream := url.Values{}
		upstream.Set("client_id", deps.ClientID)
		upstream.Set("client_secret", deps.ClientSecret)
		for _, name := range forward {
			if v := r.PostForm.Get(name); v != "" {
				upstream.Set(name, v)
			}
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
			deps.Authority+"/oauth2/v2.0/token", strings.NewReader(upstream.Encode()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "building token request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := deps.HTTPClient.Do(req)
		if err != nil {
			slog.Error("token exchange failed", "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "token exchange failed")
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
