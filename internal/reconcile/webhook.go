package reconcile

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fiscalstream/emissor/internal/lifecycle"
	"github.com/fiscalstream/emissor/internal/store"
)

// flexString tolerates the authority sending a field as either a JSON string
// or a bare number ("numero": 42 vs "numero": "42").
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// webhookBody is the delivery shape. The authority uses two layouts over
// time: fields at the top level or nested under "data". Both are decoded
// here and normalized once, so nothing downstream guesses field locations.
type webhookBody struct {
	AuthorityID flexString `json:"authorityId"`
	Status      flexString `json:"status"`
	Reason      flexString `json:"motivo"`
	Number      flexString `json:"numero"`
	Series      flexString `json:"serie"`
	AccessKey   flexString `json:"chave"`
	PDFURL      flexString `json:"pdfUrl"`
	XMLURL      flexString `json:"xmlUrl"`

	Data *webhookBody `json:"data"`
}

// normalize flattens the nested layout, preferring nested values when set.
func (b *webhookBody) normalize() webhookBody {
	out := *b
	if b.Data != nil {
		nested := b.Data.normalize()
		pick := func(dst *flexString, nested flexString) {
			if nested != "" {
				*dst = nested
			}
		}
		pick(&out.AuthorityID, nested.AuthorityID)
		pick(&out.Status, nested.Status)
		pick(&out.Reason, nested.Reason)
		pick(&out.Number, nested.Number)
		pick(&out.Series, nested.Series)
		pick(&out.AccessKey, nested.AccessKey)
		pick(&out.PDFURL, nested.PDFURL)
		pick(&out.XMLURL, nested.XMLURL)
	}
	out.Data = nil
	return out
}

func (b webhookBody) update() lifecycle.Update {
	return lifecycle.Update{
		RawStatus:      string(b.Status),
		DocumentNumber: string(b.Number),
		Series:         string(b.Series),
		AccessKey:      string(b.AccessKey),
		PDFURL:         string(b.PDFURL),
		XMLURL:         string(b.XMLURL),
		Reason:         string(b.Reason),
	}
}

// WebhookHandler receives authority push deliveries. Deliveries are
// at-least-once: duplicates and reordering are handled by the reconciler,
// so the handler can acknowledge every processed delivery with 200.
type WebhookHandler struct {
	store  *store.Store
	rec    *Reconciler
	secret string
}

// NewWebhookHandler creates the receiver. The shared secret gates every
// delivery; a mismatch affects only that delivery, never document state.
func NewWebhookHandler(s *store.Store, rec *Reconciler, secret string) *WebhookHandler {
	return &WebhookHandler{store: s, rec: rec, secret: secret}
}

// ServeHTTP implements http.Handler.
//
// Responses: 401 secret mismatch, 400 no identifier, 404 unknown identifier,
// 200 processed (including ignored statuses), 500 persistence failure.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		slog.Warn("webhook delivery rejected: bad secret", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	ev := body.normalize()

	if ev.AuthorityID == "" {
		http.Error(w, "missing authority identifier", http.StatusBadRequest)
		return
	}

	doc, err := h.store.GetByAuthorityID(r.Context(), string(ev.AuthorityID))
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("webhook for unknown authority id", "authority_id", ev.AuthorityID)
		http.Error(w, "unknown document", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	outcome, err := h.rec.Apply(r.Context(), doc, ev.update())
	if err != nil {
		http.Error(w, "persistence failed", http.StatusInternalServerError)
		return
	}

	result := "processed"
	if outcome == lifecycle.OutcomeIgnored {
		result = "ignored"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"result": result})
}

// authorized checks the bearer-style shared secret in constant time.
func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	header := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(header), []byte(h.secret)) == 1
}
