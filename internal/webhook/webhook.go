// Package webhook implements the WhatsApp Business webhook: subscription
// verification on GET and signed message delivery on POST.
//
// A POST is rejected with 403 before its body is parsed unless the
// X-Hub-Signature-256 header carries the HMAC-SHA256 of the raw body keyed
// with the app secret.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// SignatureHeader carries the payload signature.
const SignatureHeader = "X-Hub-Signature-256"

// BusinessAccountObject is the only payload object type processed.
const BusinessAccountObject = "whatsapp_business_account"

const maxBodyBytes = 1 << 20

// Outcome labels recorded per request.
const (
	OutcomeVerified         = "verified"
	OutcomeForbidden        = "forbidden"
	OutcomeBadRequest       = "bad_request"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeBadJSON          = "bad_json"
	OutcomeIgnored          = "ignored"
	OutcomeInvalidFormat    = "invalid_format"
	OutcomeMessage          = "message"
	OutcomeHandlerError     = "handler_error"
)

// Message is an incoming text message.
type Message struct {
	From string
	Body string
}

// MessageHandler processes a verified message and returns the JSON reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message) (map[string]any, error)
}

// MessageHandlerFunc adapts a function to [MessageHandler].
type MessageHandlerFunc func(ctx context.Context, msg Message) (map[string]any, error)

// HandleMessage implements [MessageHandler].
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg Message) (map[string]any, error) {
	return f(ctx, msg)
}

// EchoHandler acknowledges every message with its body and sender.
var EchoHandler = MessageHandlerFunc(func(_ context.Context, msg Message) (map[string]any, error) {
	return map[string]any{
		"message":      "Received: " + msg.Body,
		"phone_number": msg.From,
	}, nil
})

// Secrets are the shared values configured in the WhatsApp app dashboard.
type Secrets struct {
	VerifyToken string
	AppSecret   string
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records request outcomes into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server handles /webhook. Secrets can be replaced while serving.
type Server struct {
	secrets atomic.Pointer[Secrets]
	handler MessageHandler
	log     *slog.Logger
	metrics *observe.Metrics
}

// New returns a Server. A nil handler uses [EchoHandler].
func New(secrets Secrets, handler MessageHandler, opts ...Option) *Server {
	if handler == nil {
		handler = EchoHandler
	}
	s := &Server{handler: handler, log: slog.Default()}
	s.secrets.Store(&secrets)
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetSecrets replaces the verify token and app secret for subsequent requests.
func (s *Server) SetSecrets(secrets Secrets) {
	s.secrets.Store(&secrets)
	s.log.Info("webhook secrets updated")
}

// Register adds the webhook routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /webhook", s.Verify)
	mux.HandleFunc("POST /webhook", s.Receive)
}

// Verify answers the subscription handshake.
func (s *Server) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")

	if mode == "" || token == "" {
		s.record(r.Context(), OutcomeBadRequest)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	expected := s.secrets.Load().VerifyToken
	if mode != "subscribe" || !hmac.Equal([]byte(token), []byte(expected)) {
		s.record(r.Context(), OutcomeForbidden)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.record(r.Context(), OutcomeVerified)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// Receive verifies the signature and hands the message to the handler.
func (s *Server) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx, s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.record(ctx, OutcomeBadRequest)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if !ValidSignature(s.secrets.Load().AppSecret, body, r.Header.Get(SignatureHeader)) {
		log.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		s.record(ctx, OutcomeInvalidSignature)
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		s.record(ctx, OutcomeBadJSON)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON: " + err.Error()})
		return
	}
	if p.Object != BusinessAccountObject {
		s.record(ctx, OutcomeIgnored)
		http.Error(w, "Invalid request", http.StatusNotFound)
		return
	}

	msg, err := p.message()
	if err != nil {
		log.Warn("malformed webhook message", "err", err)
		s.record(ctx, OutcomeInvalidFormat)
		writeJSON(w, http.StatusOK, map[string]any{"error": "Invalid message format: " + err.Error()})
		return
	}

	reply, err := s.handler.HandleMessage(ctx, msg)
	if err != nil {
		log.Error("message handler failed", "err", err)
		s.record(ctx, OutcomeHandlerError)
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
		return
	}
	s.record(ctx, OutcomeMessage)
	writeJSON(w, http.StatusOK, reply)
}

// ValidSignature reports whether header is the hex HMAC-SHA256 of body under
// secret. An optional "sha256=" prefix is accepted. An empty header is never
// valid.
func ValidSignature(secret string, body []byte, header string) bool {
	sig := header
	if i := strings.LastIndex(header, "sha256="); i >= 0 {
		sig = header[i+len("sha256="):]
	}
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected))
}

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) record(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(ctx, outcome)
	}
}

// ─── Payload ──────────────────────────────────────────────────────────────────

type payload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From *string `json:"from"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (p *payload) message() (Message, error) {
	if len(p.Entry) == 0 {
		return Message{}, errors.New("missing entry")
	}
	if len(p.Entry[0].Changes) == 0 {
		return Message{}, errors.New("missing changes")
	}
	msgs := p.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return Message{}, errors.New("missing messages")
	}
	m := msgs[0]
	if m.From == nil {
		return Message{}, errors.New("missing from")
	}
	msg := Message{From: *m.From}
	if m.Text != nil {
		msg.Body = m.Text.Body
	}
	return msg, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
