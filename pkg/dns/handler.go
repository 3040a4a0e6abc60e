// Package dns implements the resolver's listener, request handler and
// response synthesis.
package dns

import (
	"context"

	"advoid/pkg/blocklist"
	"advoid/pkg/cache"
	"advoid/pkg/event"
	"advoid/pkg/localzone"
	"advoid/pkg/logging"
	"advoid/pkg/telemetry"

	"github.com/miekg/dns"
)

// Exchanger forwards a query to an upstream resolver. *forwarder.Forwarder
// satisfies it; tests substitute scripted fakes.
type Exchanger interface {
	Forward(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
}

// Handler classifies each query and either synthesizes a local answer or
// forwards it upstream. One Handler serves all connections; every field is
// safe for concurrent use.
type Handler struct {
	decisions *cache.DecisionCache
	upstream  Exchanger
	sink      event.Sink
	metrics   *telemetry.Metrics
	logger    *logging.Logger

	// blockLocalZone gates RFC 6303 reverse zones and reserved names.
	blockLocalZone bool

	// baseCtx is cancelled on shutdown, so in-flight upstream exchanges
	// stop with the process instead of riding out their timeout.
	baseCtx context.Context
}

// NewHandler creates a Handler over the given classification cache, upstream
// and event sink. Upstream exchanges run under ctx.
func NewHandler(ctx context.Context, decisions *cache.DecisionCache, upstream Exchanger, sink event.Sink, metrics *telemetry.Metrics, logger *logging.Logger, blockLocalZone bool) *Handler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Handler{
		decisions:      decisions,
		upstream:       upstream,
		sink:           sink,
		metrics:        metrics,
		logger:         logger,
		blockLocalZone: blockLocalZone,
		baseCtx:        ctx,
	}
}

// ServeDNS implements dns.Handler. Malformed or unsupported queries are
// rejected before any counter moves, so the total counter equals the sum of
// the block and forward counters at all times.
func (h *Handler) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	if req.Response || req.Opcode != dns.OpcodeQuery {
		h.refuse(w, req, dns.RcodeNotImplemented)
		return
	}
	if len(req.Question) != 1 {
		h.refuse(w, req, dns.RcodeFormatError)
		return
	}
	if badVersion(req) {
		h.badVers(w, req)
		return
	}

	q := req.Question[0]
	name := blocklist.Canonical(q.Name)

	h.metrics.RequestsTotal.Inc()
	requestID := h.sink.Request(w.RemoteAddr(), name, q.Qclass, q.Qtype)

	resp, outcome := h.answer(req, name, q.Qtype)

	ApplyEDNS(resp, req)
	h.metrics.CacheEntries.Set(float64(h.decisions.Len()))
	h.sink.Response(requestID, outcome, resp.Rcode, len(resp.Answer))

	h.writeMsg(w, resp)
}

// answer runs the classification pipeline and returns the response along
// with the outcome recorded in the event trace.
func (h *Handler) answer(req *dns.Msg, name string, qtype uint16) (*dns.Msg, event.Outcome) {
	if h.blockLocalZone {
		if zone, ok := localzone.Find(name); ok {
			if name == zone {
				h.metrics.RequestsBlocked.Inc()
				h.logger.Debug("Answering local zone apex", "domain", name)
				return ApexResponse(req, zone), event.OutcomeBlocked
			}
			if qtype == dns.TypePTR {
				h.metrics.RequestsBlocked.Inc()
				h.logger.Debug("Blocking local zone query", "domain", name, "zone", zone)
				return NegativeResponse(req, zone), event.OutcomeBlocked
			}
		}
	}

	if zone, blocked := h.decisions.Classify(name); blocked {
		h.metrics.RequestsBlocked.Inc()
		h.logger.Debug("Blocking query", "domain", name, "zone", zone)
		return NegativeResponse(req, zone), event.OutcomeBlocked
	}

	// The forward counter moves before the upstream exchange so a failed
	// exchange still accounts as a forward attempt.
	h.metrics.RequestsForwarded.Inc()

	upstream, err := h.upstream.Forward(h.baseCtx, req)
	if err != nil {
		h.logger.Warn("Upstream query failed", "domain", name, "error", err)
		return ServerFailure(req), event.OutcomeError
	}

	return ForwardedResponse(req, upstream), event.OutcomeForwarded
}

// refuse answers with rcode without touching counters or the event trace.
func (h *Handler) refuse(w dns.ResponseWriter, req *dns.Msg, rcode int) {
	m := new(dns.Msg)
	m.SetRcode(req, rcode)
	h.writeMsg(w, m)
}

// badVers rejects an EDNS version above 0, as RFC 6891 requires. The
// extended rcode lives in the response's own OPT record.
func (h *Handler) badVers(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetRcode(req, dns.RcodeBadVers)
	m.SetEdns0(UDPPayloadSize, false)
	h.writeMsg(w, m)
}

func (h *Handler) writeMsg(w dns.ResponseWriter, m *dns.Msg) {
	if err := w.WriteMsg(m); err != nil {
		h.logger.Error("Failed to write DNS response", "error", err)
	}
}
