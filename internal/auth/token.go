// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth validates the shared dispatch token the chat gateway
// presents on every inbound call.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/svcadvisor/estimate-pipeline/internal/log"
)

// ExtractToken pulls the dispatch token from an inbound request, trying
// in order: the Authorization bearer header, the X-Dispatch-Token header,
// and — only when allowQuery is set — the ?token= query parameter. The
// query form exists for EventSource progress streams, which cannot set
// headers; everything else should use the bearer header.
func ExtractToken(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	if t := r.Header.Get("X-Dispatch-Token"); t != "" {
		return t
	}

	if allowQuery {
		if t := r.URL.Query().Get("token"); t != "" {
			log.L().Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("query-parameter token accepted; prefer the Authorization header where the client supports it")
			return t
		}
	}

	return ""
}

// AuthorizeToken reports whether got matches expected, compared in
// constant time. An empty token on either side never authorizes.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against
// expectedToken.
func AuthorizeRequest(r *http.Request, expectedToken string, allowQuery bool) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r, allowQuery), expectedToken)
}
