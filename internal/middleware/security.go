package middleware

import (
	"fmt"
	"net/http"

	"github.com/unrolled/secure"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
)

// SecurityOptions selects the header policy variant.
type SecurityOptions struct {
	// Policy is config.PolicyStrict (same-origin only) or config.PolicyCDN.
	Policy string
	// CDNOrigin is the extra origin allowed by config.PolicyCDN.
	CDNOrigin string
	// ForceHTTPS redirects plain HTTP requests to HTTPS.
	ForceHTTPS bool
}

// ContentSecurityPolicy returns the CSP header value for the policy variant.
func ContentSecurityPolicy(policy, cdnOrigin string) (string, error) {
	switch policy {
	case config.PolicyStrict, "":
		return "default-src 'self'; img-src 'self' data:; style-src 'self'; font-src 'self'; " +
			"object-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'", nil
	case config.PolicyCDN:
		return fmt.Sprintf("default-src 'self' %s; img-src *; "+
			"style-src 'self' https://fonts.googleapis.com; "+
			"font-src 'self' https://fonts.gstatic.com", cdnOrigin), nil
	default:
		return "", fmt.Errorf("unknown security policy %q", policy)
	}
}

// SecurityHeaders sets the CSP, HSTS, framing, sniffing and referrer
// headers on every response.
func SecurityHeaders(opts SecurityOptions) (func(http.Handler) http.Handler, error) {
	csp, err := ContentSecurityPolicy(opts.Policy, opts.CDNOrigin)
	if err != nil {
		return nil, err
	}

	s := secure.New(secure.Options{
		SSLRedirect:             opts.ForceHTTPS,
		SSLProxyHeaders:         map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:              31536000,
		STSIncludeSubdomains:    true,
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		ReferrerPolicy:          "strict-origin-when-cross-origin",
		PermissionsPolicy:       "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy:   csp,
	})
	return s.Handler, nil
}
