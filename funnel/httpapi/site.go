package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/chat"
)

const maxSiteRequestBody = 64 << 10

type siteRequests struct {
	opts      SiteRequestOptions
	messenger chat.Messenger
	limiter   *rate.Limiter
	origins   map[string]struct{}
	fallback  string
	wildcard  bool
}

func newSiteRequests(m chat.Messenger, opts SiteRequestOptions) *siteRequests {
	if opts.PerMinute <= 0 {
		opts.PerMinute = 30
	}
	if opts.Title == "" {
		opts.Title = "New request from the site"
	}
	s := &siteRequests{
		opts:      opts,
		messenger: m,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.PerMinute)), opts.PerMinute),
		origins:   map[string]struct{}{},
	}
	for _, o := range opts.AllowedOrigins {
		o = normalizeOrigin(o)
		switch o {
		case "":
		case "*":
			s.wildcard = true
		default:
			if s.fallback == "" {
				s.fallback = o
			}
			s.origins[o] = struct{}{}
		}
	}
	if len(s.origins) == 0 {
		s.wildcard = true
	}
	return s
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

// allowOrigin echoes a listed origin; unlisted ones get the first configured origin.
func (s *siteRequests) allowOrigin(origin string) string {
	if s.wildcard {
		return "*"
	}
	if _, ok := s.origins[normalizeOrigin(origin)]; ok {
		return origin
	}
	return s.fallback
}

func (s *siteRequests) setCORS(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.allowOrigin(r.Header.Get("Origin")))
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
	if !s.wildcard {
		h.Add("Vary", "Origin")
	}
}

func (s *siteRequests) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *siteRequests) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.setCORS(w, r)

	if s.opts.APIKey != "" && r.Header.Get("X-Api-Key") != s.opts.APIKey {
		writeSiteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !s.limiter.Allow() {
		logger.Warn(ctx, logger.CompHTTP, "site_request.limited", slog.String("outcome", "rate_limited"))
		writeSiteError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSiteRequestBody)).Decode(&body); err != nil {
		writeSiteError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	req, err := parseSiteRequest(body)
	if err != nil {
		var ve *funnel.ValidationError
		if errors.As(err, &ve) {
			writeSiteError(w, http.StatusBadRequest, "invalid_"+ve.Field)
			return
		}
		writeSiteError(w, http.StatusBadRequest, "invalid_payload")
		return
	}

	if err := s.forward(ctx, req); err != nil {
		logger.Error(ctx, logger.CompHTTP, "site_request.forward", slog.String("status", "fail"), logger.Err(err))
		writeSiteError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeSiteError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

type siteRequest struct {
	Name    string
	Phone   string
	Details [][2]string
}

// parseSiteRequest requires a name of two or more characters and an
// 11-digit phone starting with 7; other fields are carried as details.
func parseSiteRequest(body map[string]any) (siteRequest, error) {
	req := siteRequest{
		Name:  strings.TrimSpace(fieldString(body["name"])),
		Phone: strings.TrimSpace(fieldString(body["phone"])),
	}
	if utf8.RuneCountInString(req.Name) < 2 {
		return req, &funnel.ValidationError{Field: "name", Reason: "too short"}
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, req.Phone)
	if len(digits) != 11 || !strings.HasPrefix(digits, "7") {
		return req, &funnel.ValidationError{Field: "phone", Reason: "expected 11 digits starting with 7"}
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		if k != "name" && k != "phone" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := fieldString(body[k]); v != "" {
			req.Details = append(req.Details, [2]string{k, v})
		}
	}
	return req, nil
}

func fieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func (s *siteRequests) format(req siteRequest) string {
	var b strings.Builder
	b.WriteString(s.opts.Title)
	b.WriteString("\n\nName: " + req.Name)
	b.WriteString("\nPhone: " + req.Phone)
	if len(req.Details) > 0 {
		b.WriteString("\n")
		for _, d := range req.Details {
			b.WriteString("\n" + d[0] + ": " + d[1])
		}
	}
	return b.String()
}

// forward fails only when no recipient got the request.
func (s *siteRequests) forward(ctx context.Context, req siteRequest) error {
	if s.messenger == nil || len(s.opts.Recipients) == 0 {
		return errors.New("site request: no recipients configured")
	}
	text := s.format(req)
	var errs []error
	for _, id := range s.opts.Recipients {
		if err := s.messenger.SendText(ctx, id, text, nil); err != nil {
			errs = append(errs, &funnel.NotificationDeliveryError{RecipientID: id, Role: funnel.RoleOperator, Err: err})
		}
	}
	if len(errs) == len(s.opts.Recipients) {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		logger.Warn(ctx, logger.CompHTTP, "site_request.partial", slog.Int("failed", len(errs)), logger.Err(errors.Join(errs...)))
	}
	logger.Info(ctx, logger.CompHTTP, "site_request.forwarded", slog.String("status", "ok"), slog.Int("count", len(s.opts.Recipients)-len(errs)))
	return nil
}
