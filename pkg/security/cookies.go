package security

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// MaxCookieValueLen is the largest value written into a single cookie.
// Browsers cap the whole cookie (name, value and attributes) at about
// 4096 bytes, so the value budget leaves room for everything else.
const MaxCookieValueLen = 3800

const chunkManifestPrefix = "chunks="

// CookieOptions carries the attributes applied to every cookie (and every
// chunk of a chunked cookie) this package writes.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// NewCookie builds a cookie with the given options applied.
func NewCookie(name, value string, opts CookieOptions) *http.Cookie {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   opts.Domain,
		MaxAge:   opts.MaxAge,
		Secure:   opts.Secure,
		HttpOnly: opts.HttpOnly,
		SameSite: opts.SameSite,
	}
}

// SetChunked writes value under name, splitting it across name, name_1,
// name_2, ... when it exceeds the single-cookie budget. The first cookie
// carries a manifest with the total chunk count so readers can detect a
// partial set.
func SetChunked(w http.ResponseWriter, name, value string, opts CookieOptions) {
	if len(value) <= MaxCookieValueLen {
		http.SetCookie(w, NewCookie(name, value, opts))
		return
	}

	var segments []string
	for len(value) > 0 {
		n := MaxCookieValueLen
		if n > len(value) {
			n = len(value)
		}
		segments = append(segments, value[:n])
		value = value[n:]
	}

	manifest := fmt.Sprintf("%s%d:%s", chunkManifestPrefix, len(segments), segments[0])
	http.SetCookie(w, NewCookie(name, manifest, opts))
	for i := 1; i < len(segments); i++ {
		http.SetCookie(w, NewCookie(fmt.Sprintf("%s_%d", name, i), segments[i], opts))
	}
}

// GetChunked reads a value written by SetChunked, reassembling chunks when
// the manifest indicates there are any. It returns "" if the cookie is
// absent or the chunk set is inconsistent (missing chunk, or more chunks
// present than the manifest declares) so a partial write is treated the
// same as no cookie at all.
func GetChunked(r *http.Request, name string) string {
	base, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(base.Value, chunkManifestPrefix) {
		return base.Value
	}

	rest := strings.TrimPrefix(base.Value, chunkManifestPrefix)
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return ""
	}
	count, err := strconv.Atoi(rest[:sep])
	if err != nil || count < 1 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(rest[sep+1:])
	for i := 1; i < count; i++ {
		c, err := r.Cookie(fmt.Sprintf("%s_%d", name, i))
		if err != nil {
			return ""
		}
		sb.WriteString(c.Value)
	}
	// A chunk past the declared count means the manifest and the received
	// set disagree; fail closed.
	if _, err := r.Cookie(fmt.Sprintf("%s_%d", name, count)); err == nil {
		return ""
	}
	return sb.String()
}

// DeleteChunked expires the named cookie and every chunk of it present on
// the request. Each deletion is written both host-only and domain-scoped
// so deployments that changed their cookie-domain configuration still
// clear the stale variant.
func DeleteChunked(w http.ResponseWriter, r *http.Request, name string, opts CookieOptions) {
	expire := func(cookieName string) {
		o := opts
		o.MaxAge = -1
		o.Domain = ""
		http.SetCookie(w, NewCookie(cookieName, "", o))
		if opts.Domain != "" {
			o.Domain = opts.Domain
			http.SetCookie(w, NewCookie(cookieName, "", o))
		}
	}

	expire(name)
	for i := 1; ; i++ {
		chunk := fmt.Sprintf("%s_%d", name, i)
		if _, err := r.Cookie(chunk); err != nil {
			break
		}
		expire(chunk)
	}
}
