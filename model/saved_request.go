package model

import (
	"net/http"
	"net/url"

	"golang.org/x/text/language"
)

// SavedRequestAttribute is the session attribute under which a request captured
// before authentication is kept.
const SavedRequestAttribute = "SAVED_REQUEST"

type SavedCookie struct {
	Name     string `bson:"name" json:"name"`
	Value    string `bson:"value" json:"value"`
	Path     string `bson:"path" json:"path"`
	Domain   string `bson:"domain" json:"domain"`
	MaxAge   int    `bson:"max_age" json:"max_age"`
	Secure   bool   `bson:"secure" json:"secure"`
	HTTPOnly bool   `bson:"http_only" json:"http_only"`
}

// SavedRequest describes an HTTP request so it can be replayed after login.
type SavedRequest struct {
	Method     string              `bson:"method" json:"method"`
	Scheme     string              `bson:"scheme" json:"scheme"`
	Host       string              `bson:"host" json:"host"`
	Path       string              `bson:"path" json:"path"`
	RawQuery   string              `bson:"raw_query" json:"raw_query"`
	RequestURL string              `bson:"request_url" json:"request_url"`
	Headers    map[string][]string `bson:"headers" json:"headers"`
	Cookies    []SavedCookie       `bson:"cookies" json:"cookies"`
	Parameters map[string][]string `bson:"parameters" json:"parameters"`
	Locales    []string            `bson:"locales" json:"locales"`
}

// NewSavedRequest captures r. Cookies are kept separately from the headers and
// the body is never read.
func NewSavedRequest(r *http.Request) *SavedRequest {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	headers := make(map[string][]string, len(r.Header))
	for name, values := range r.Header {
		if name == "Cookie" {
			continue
		}
		headers[name] = append([]string(nil), values...)
	}

	cookies := make([]SavedCookie, 0)
	for _, c := range r.Cookies() {
		cookies = append(cookies, SavedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			MaxAge:   c.MaxAge,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}

	params := make(map[string][]string)
	for name, values := range r.URL.Query() {
		params[name] = append([]string(nil), values...)
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	return &SavedRequest{
		Method:     r.Method,
		Scheme:     scheme,
		Host:       r.Host,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		RequestURL: u.String(),
		Headers:    headers,
		Cookies:    cookies,
		Parameters: params,
		Locales:    parseLocales(r.Header.Get("Accept-Language")),
	}
}

// Matches reports whether r targets the same resource as the saved request.
func (sr *SavedRequest) Matches(r *http.Request) bool {
	if sr == nil || r == nil {
		return false
	}
	return sr.Method == r.Method &&
		sr.Host == r.Host &&
		sr.Path == r.URL.Path &&
		sr.RawQuery == r.URL.RawQuery
}

func parseLocales(header string) []string {
	locales := make([]string, 0)
	if header == "" {
		return locales
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return locales
	}
	for _, tag := range tags {
		locales = append(locales, tag.String())
	}
	return locales
}
