package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin resource sharing behaviour.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or a single "*" entry, allows every origin.
	AllowOrigins []string

	// AllowMethods lists methods permitted in actual requests. Defaults to
	// "GET, POST, PUT, PATCH, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. When empty the
	// preflight response echoes Access-Control-Request-Headers.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers. The
	// wildcard origin is never sent when set; the matched origin is echoed.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

// corsHeaders holds the precomputed response header values.
type corsHeaders struct {
	wildcard    bool
	origins     map[string]string // lowercased origin -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func compileCORS(cfg CORSConfig) corsHeaders {
	ch := corsHeaders{
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	ch.wildcard = len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			ch.wildcard = true
			continue
		}
		ch.origins[strings.ToLower(o)] = o
	}
	// Credentialed responses must name the origin, never "*".
	if ch.credentials {
		ch.wildcard = false
	}
	if ch.methods == "" {
		ch.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		ch.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		ch.maxAge = "0"
	}
	return ch
}

// allowOrigin resolves the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not permitted.
func (ch corsHeaders) allowOrigin(origin string) string {
	if ch.wildcard {
		return "*"
	}
	return ch.origins[strings.ToLower(origin)]
}

// CORS returns a middleware implementing the CORS protocol: it answers
// preflight OPTIONS requests itself and decorates actual responses with the
// configured allow headers. Vary is set so shared caches keep per-origin
// responses apart.
func CORS(cfg CORSConfig) Middleware {
	ch := compileCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin request. Still vary on Origin when responses
				// differ per origin.
				if !ch.wildcard {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				ch.preflight(w, r, origin)
				return
			}

			if !ch.wildcard {
				w.Header().Add("Vary", "Origin")
			}
			if allow := ch.allowOrigin(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if ch.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if ch.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", ch.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (ch corsHeaders) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := ch.allowOrigin(origin)
	if allow == "" {
		// Disallowed origin gets an empty preflight answer.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", ch.methods)
	switch {
	case ch.headers != "":
		h.Set("Access-Control-Allow-Headers", ch.headers)
	case r.Header.Get("Access-Control-Request-Headers") != "":
		h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
	}
	if ch.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if ch.maxAge != "" {
		h.Set("Access-Control-Max-Age", ch.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}
