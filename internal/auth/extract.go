package auth

import (
	"net/http"
	"strings"
)

const (
	bearerScheme    = "Bearer"
	accessTokenName = "access_token"
)

// Extractor pulls a credential out of a request. It reports false when the
// request does not carry a credential in the shape it understands.
type Extractor func(r *http.Request) (string, bool)

// HeaderExtractor reads an "Authorization: Bearer <token>" header. Browsers
// sometimes send the literal string "null" when no token is set; that is
// treated as absent so the cookie fallback gets a chance.
func HeaderExtractor(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, param, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	param = strings.TrimSpace(param)
	if param == "" || param == "null" {
		return "", false
	}
	return param, true
}

// CookieExtractor reads the "access_token" cookie, whose value carries a
// literal "Bearer " prefix that is stripped before use.
func CookieExtractor(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(accessTokenName)
	if err != nil {
		return "", false
	}
	value := cookie.Value
	if !strings.HasPrefix(value, bearerScheme+" ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(value, bearerScheme+" "))
	if token == "" {
		return "", false
	}
	return token, true
}

// defaultExtractors is the ordered extraction chain: the Authorization
// header wins over the cookie when both are present.
var defaultExtractors = []Extractor{
	HeaderExtractor,
	CookieExtractor,
}

// ExtractToken tries each extraction strategy in order and returns the
// first credential found, or ErrMissingToken when none applies.
func ExtractToken(r *http.Request) (string, error) {
	for _, extract := range defaultExtractors {
		if token, ok := extract(r); ok {
			return token, nil
		}
	}
	return "", ErrMissingToken
}
