package i18n

import "net/http"

// Middleware picks the request language from the "lang" query parameter,
// then the Accept-Language header, and injects a matching localizer into
// the request context.
func (tr *Translator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := tr.Match(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), tr.NewLocalizer(tag.String()))
			w.Header().Set("Content-Language", tag.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
