package dns

import (
	"github.com/miekg/dns"
)

// Synthetic SOA contents for locally answered zones.
const (
	soaNs      = "ns.advoid."
	soaMbox    = "hostmaster.advoid."
	soaSerial  = 1
	soaRefresh = 3600
	soaRetry   = 1800
	soaExpire  = 604800
	soaMinimum = 3600

	// fallbackZone owns the SOA of a negative answer when no enclosing zone
	// is known for the queried name.
	fallbackZone = "advoid."
)

func soaRecord(zone string) *dns.SOA {
	return &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   zone,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    soaMinimum,
		},
		Ns:      soaNs,
		Mbox:    soaMbox,
		Serial:  soaSerial,
		Refresh: soaRefresh,
		Retry:   soaRetry,
		Expire:  soaExpire,
		Minttl:  soaMinimum,
	}
}

func nsRecord(zone string) *dns.NS {
	return &dns.NS{
		Hdr: dns.RR_Header{
			Name:   zone,
			Rrtype: dns.TypeNS,
			Class:  dns.ClassINET,
			Ttl:    soaMinimum,
		},
		Ns: soaNs,
	}
}

// NegativeResponse builds an authoritative NXDOMAIN for req. The authority
// section carries exactly one SOA owned by zone, the closest enclosing zone
// of the queried name, so resolvers can cache the denial per RFC 2308.
func NegativeResponse(req *dns.Msg, zone string) *dns.Msg {
	if zone == "" {
		zone = fallbackZone
	}

	m := new(dns.Msg)
	m.SetRcode(req, dns.RcodeNameError)
	m.Authoritative = true
	m.RecursionAvailable = true
	m.Ns = []dns.RR{soaRecord(zone)}
	return m
}

// ApexResponse answers a query for a locally served zone apex. SOA and NS
// queries get the matching record in the answer section; anything else is a
// NODATA answer with the SOA in authority.
func ApexResponse(req *dns.Msg, zone string) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true
	m.RecursionAvailable = true

	switch req.Question[0].Qtype {
	case dns.TypeSOA:
		m.Answer = []dns.RR{soaRecord(zone)}
	case dns.TypeNS:
		m.Answer = []dns.RR{nsRecord(zone)}
	default:
		m.Ns = []dns.RR{soaRecord(zone)}
	}
	return m
}

// ForwardedResponse rebinds an upstream answer to the client's request: the
// client's message ID and question are restored, the RCODE and RA flag come
// from the upstream, all record sections carry over (RRSIGs included), and
// any upstream OPT is stripped so ApplyEDNS can attach ours.
func ForwardedResponse(req, upstream *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(req, upstream.Rcode)
	m.RecursionAvailable = upstream.RecursionAvailable
	m.Authoritative = upstream.Authoritative
	m.Truncated = upstream.Truncated

	m.Answer = upstream.Answer
	m.Ns = upstream.Ns
	m.Extra = withoutOPT(upstream.Extra)
	return m
}

// ServerFailure builds a SERVFAIL for req, preserving the client's ID.
func ServerFailure(req *dns.Msg) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(req, dns.RcodeServerFailure)
	m.RecursionAvailable = true
	return m
}

func withoutOPT(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		out = append(out, rr)
	}
	return out
}
