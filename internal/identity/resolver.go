// Package identity verifies Microsoft Entra ID bearer tokens and resolves
// them to a stable per-user identifier used as the storage namespace.
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// keySetTTL bounds how long a fetched signing-key set is reused. The cache
// is time-based only: a key rotated inside the window fails verification
// until the slot expires. Known staleness window, not invalidated on error.
const keySetTTL = time.Hour

// ErrTokenExpired reports a token past its expiry claim.
var ErrTokenExpired = errors.New("token has expired")

// ErrSignatureInvalid reports a token whose signature does not verify
// against the provider's published keys.
var ErrSignatureInvalid = errors.New("token signature verification failed")

// ClaimValidationError reports a token whose claims fail the audience or
// issuer allow-lists.
type ClaimValidationError struct {
	Reason string
}

func (e *ClaimValidationError) Error() string {
	return "token validation failed: " + e.Reason
}

// MissingClaimError reports a token lacking a required claim.
type MissingClaimError struct {
	Claim string
}

func (e *MissingClaimError) Error() string {
	return "token missing required claim: " + e.Claim
}

// Claims is the verified, request-scoped claim set of a bearer token.
type Claims struct {
	OID               string
	Sub               string
	Aud               string
	Iss               string
	TID               string
	Exp               time.Time
	Iat               time.Time
	Name              string
	PreferredUsername string
}

// UserID returns the storage namespace key for these claims: the oid claim,
// unique per user within a tenant.
func (c *Claims) UserID() string {
	return c.OID
}

// Config configures a Resolver. HTTPClient, Now, and JWKSURL default to the
// obvious production values when zero.
type Config struct {
	TenantID   string
	ClientID   string
	HTTPClient *http.Client
	Now        func() time.Time
	JWKSURL    string
}

// Resolver verifies Entra ID access tokens against the tenant's published
// signing keys.
type Resolver struct {
	tenantID   string
	clientID   string
	httpClient *http.Client
	now        func() time.Time
	jwksURL    string

	mu     sync.Mutex
	keys   jwk.Set
	expiry time.Time
}

// NewResolver builds a Resolver for the given tenant and client.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" {
		return nil, errors.New("identity: tenant id and client id are required")
	}
	r := &Resolver{
		tenantID:   cfg.TenantID,
		clientID:   cfg.ClientID,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		jwksURL:    cfg.JWKSURL,
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.jwksURL == "" {
		r.jwksURL = fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", cfg.TenantID)
	}
	return r, nil
}

// Verify checks the token's signature, audience, issuer, and required
// claims, and returns the claim set on success.
func (r *Resolver) Verify(ctx context.Context, token string) (*Claims, error) {
	set, err := r.keySet(ctx)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(r.now),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, keyFor(set)); err != nil {
		return nil, mapVerifyError(err)
	}

	auds, err := claims.GetAudience()
	if err != nil {
		return nil, &ClaimValidationError{Reason: "unreadable aud claim"}
	}
	if !intersects(auds, []string{r.clientID, "api://" + r.clientID}) {
		return nil, &ClaimValidationError{Reason: "unexpected audience"}
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, &ClaimValidationError{Reason: "unreadable iss claim"}
	}
	validIssuers := []string{
		fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", r.tenantID),
		fmt.Sprintf("https://sts.windows.net/%s/", r.tenantID),
	}
	if !intersects([]string{iss}, validIssuers) {
		return nil, &ClaimValidationError{Reason: "unexpected issuer"}
	}

	oid, ok := claims["oid"].(string)
	if !ok || oid == "" {
		return nil, &MissingClaimError{Claim: "oid"}
	}

	out := &Claims{
		OID: oid,
		Iss: iss,
		TID: r.tenantID,
	}
	if sub, err := claims.GetSubject(); err == nil {
		out.Sub = sub
	}
	if len(auds) > 0 {
		out.Aud = auds[0]
	}
	if tid, ok := claims["tid"].(string); ok && tid != "" {
		out.TID = tid
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Exp = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.Iat = iat.Time
	}
	if name, ok := claims["name"].(string); ok {
		out.Name = name
	}
	if upn, ok := claims["preferred_username"].(string); ok {
		out.PreferredUsername = upn
	}
	return out, nil
}

// keySet returns the cached signing keys, refetching when the slot is
// stale. The fetch runs outside the lock; overlapping refreshes under a
// cache miss duplicate work but are harmless.
func (r *Resolver) keySet(ctx context.Context) (jwk.Set, error) {
	now := r.now()

	r.mu.Lock()
	if r.keys != nil && now.Before(r.expiry) {
		set := r.keys
		r.mu.Unlock()
		return set, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: building key set request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: fetching key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: key set endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("identity: reading key set: %w", err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing key set: %w", err)
	}

	r.mu.Lock()
	r.keys = set
	r.expiry = now.Add(keySetTTL)
	r.mu.Unlock()
	return set, nil
}

func keyFor(set jwk.Set) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token header missing kid")
		}
		key, found := set.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("no signing key with kid %q", kid)
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("materializing signing key: %w", err)
		}
		return &pub, nil
	}
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	default:
		return fmt.Errorf("identity: verifying token: %w", err)
	}
}

func intersects(values, allowed []string) bool {
	for _, v := range values {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
	}
	return false
}
