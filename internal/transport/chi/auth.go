package chi

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// exemptPaths bypass authentication so probes and scrapers work unkeyed.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens
// against the configured key set. An empty key set disables authentication.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if msg := checkBearer(r.Header.Get("Authorization"), validKeys); msg != "" {
				writeError(w, http.StatusUnauthorized, codeBadRequest, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkBearer returns an error message when the header is missing, not a
// Bearer credential, or carries an unknown key. Empty means authorized.
func checkBearer(auth string, validKeys map[string]struct{}) string {
	if auth == "" {
		return "missing authorization header"
	}
	if !strings.HasPrefix(auth, bearerPrefix) {
		return "authorization header must use Bearer scheme"
	}
	if _, ok := validKeys[strings.TrimPrefix(auth, bearerPrefix)]; !ok {
		return "invalid api key"
	}
	return ""
}
