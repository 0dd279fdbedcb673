package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// originChecker validates the Origin header on WebSocket upgrade requests
// against the configured allow-list. Origins are normalized to
// scheme://host, lowercased. "*" in the configuration allows everything.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
	log      zerolog.Logger
}

func newOriginChecker(origins []string, log zerolog.Logger) *originChecker {
	oc := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}
	return oc
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is plugged into the gorilla upgrader's CheckOrigin.
func (oc *originChecker) check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if _, ok := oc.allowed[normalized]; ok {
		return true
	}
	oc.log.Warn().Str("origin", header).Msg("blocked websocket upgrade from disallowed origin")
	return false
}
