package httpapi

import (
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel/confirm"
)

const maxWebhookBody = 1 << 20

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>
`))

type page struct {
	Title string
	Body  string
}

var (
	pageProcessing = page{"Payment is being processed", "Return to the Telegram bot."}
	pageFailed     = page{"Payment not completed", "Return to the Telegram bot and try again."}
	pageSuccess    = page{"Payment successful", "Return to the Telegram bot."}
)

type payments struct {
	gateway string
	webhook WebhookHandler
	ret     ReturnHandler
}

// handleWebhook acknowledges every parseable notification; reconciliation
// problems are logged, never surfaced to the gateway.
func (p *payments) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if chi.URLParam(r, "gateway") != p.gateway {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "unknown_gateway"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid_payload"})
		return
	}
	n, err := confirm.ParseNotification(body)
	if err != nil {
		logger.Warn(ctx, logger.CompHTTP, "webhook.parse", slog.String("status", "fail"), logger.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid_payload"})
		return
	}

	ctx = logger.WithPayment(ctx, n.Object.ID)
	verdict, err := p.webhook.Handle(ctx, n)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	logger.Event(ctx, logger.CompHTTP, level, "webhook.handled",
		slog.String("status", logger.Status(err)),
		slog.String("outcome", string(verdict)),
		slog.String("cause", n.Event),
		logger.Err(err),
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (p *payments) handleReturn(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	ctx := logger.WithOrder(r.Context(), orderID)
	verdict, err := p.ret.Handle(ctx, orderID)
	if err != nil {
		logger.Warn(ctx, logger.CompHTTP, "return.reconcile", slog.String("status", "fail"), logger.Err(err))
	}
	logger.Info(ctx, logger.CompHTTP, "return.handled", slog.String("outcome", string(verdict)))

	pg := pageProcessing
	switch {
	case verdict.Confirmed():
		pg = pageSuccess
	case verdict == confirm.VerdictFailed:
		pg = pageFailed
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, pg); err != nil {
		logger.Error(ctx, logger.CompHTTP, "return.render", logger.Err(err))
	}
}

func (p *payments) handleSuccess(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/payment/return", http.StatusFound)
}
