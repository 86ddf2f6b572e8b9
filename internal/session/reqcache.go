package session

import "context"

// RequestCache memoizes the decode of one incoming cookie for the
// lifetime of a single request, so repeated lookups do not repeat the
// cryptographic or store work. It is owned by exactly one request and
// discarded with it; it is never shared or global.
type RequestCache struct {
	token   string
	session *Session
	decoded bool
}

// Decode returns the session for token, decoding at most once per
// request. A different token (after rotation within the same request)
// invalidates the memo.
func (rc *RequestCache) Decode(ctx context.Context, codec Codec, token string) *Session {
	if rc.decoded && rc.token == token {
		return rc.session
	}
	rc.token = token
	rc.session = codec.Decode(ctx, token)
	rc.decoded = true
	return rc.session
}

// Replace swaps the cached session after a rotation or refresh so later
// reads within the same request see the new record.
func (rc *RequestCache) Replace(token string, s *Session) {
	rc.token = token
	rc.session = s
	rc.decoded = true
}

type reqCacheKey struct{}

// WithRequestCache attaches a fresh RequestCache to the context.
func WithRequestCache(ctx context.Context) (context.Context, *RequestCache) {
	rc := &RequestCache{}
	return context.WithValue(ctx, reqCacheKey{}, rc), rc
}

// RequestCacheFrom returns the request's cache, if one was attached.
func RequestCacheFrom(ctx context.Context) (*RequestCache, bool) {
	rc, ok := ctx.Value(reqCacheKey{}).(*RequestCache)
	return rc, ok
}
