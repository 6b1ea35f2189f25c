package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/logging"
	"github.com/mondominator/opsdec/internal/models"
)

// errProxyHostNotAllowed guards the image proxy against SSRF: a request is
// only forwarded if its host is explicitly allow-listed or is the base host
// of a configured Server.
var errProxyHostNotAllowed = errors.New("proxy target host is not allowed")

// handleImageProxy fetches (or serves from cache) the thumbnail at ?url=,
// rejecting any host not in the SSRF allow-list.
func (a *API) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "url query parameter is required")
		return
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		writeError(w, r, http.StatusBadRequest, "invalid url")
		return
	}

	matched, allowed := a.proxyHostAllowed(r.Context(), parsed.Hostname())
	if !allowed {
		writeServiceError(w, r, errProxyHostNotAllowed)
		return
	}

	path, contentType, status, err := a.images.Get(r.Context(), raw)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("url", raw).Msg("image cache lookup failed")
		writeServiceError(w, r, err)
		return
	}

	if status == imagecache.StatusMiss {
		var bearer string
		if matched != nil {
			bearer, err = a.encryptor.Decrypt(matched.EncryptedCredential)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Str("server_id", matched.ID).Msg("decrypt server credential for image proxy failed")
				writeServiceError(w, r, err)
				return
			}
		}

		data, fetchedContentType, err := a.images.Fetch(r.Context(), raw, bearer)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("url", raw).Msg("image proxy fetch failed")
			writeServiceError(w, r, err)
			return
		}
		path, err = a.images.Put(r.Context(), raw, data, fetchedContentType)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		contentType = fetchedContentType
	}

	w.Header().Set("X-Cache", string(status))
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, path)
}

// proxyHostAllowed reports whether host may be fetched through the image
// proxy, returning the matched Server (if any) so its credential can be
// attached to the upstream fetch on a cache miss.
func (a *API) proxyHostAllowed(ctx context.Context, host string) (*models.Server, bool) {
	for _, allowed := range a.cfg.ImageCache.AllowedProxyHosts {
		if allowed == host {
			return nil, true
		}
	}

	servers, err := a.store.ListServers(ctx)
	if err != nil {
		return nil, false
	}
	for _, srv := range servers {
		if !srv.Enabled {
			continue
		}
		if u, err := url.Parse(srv.BaseURL); err == nil && u.Hostname() == host {
			return srv, true
		}
	}
	return nil, false
}
