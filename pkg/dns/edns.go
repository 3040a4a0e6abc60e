package dns

import (
	"github.com/miekg/dns"
)

// UDPPayloadSize is the EDNS0 UDP payload size advertised in every response
// OPT record. 1232 bytes fits an unfragmented datagram on common MTUs.
const UDPPayloadSize = 1232

// ApplyEDNS attaches an OPT record to resp when, and only when, the request
// carried one. The advertised payload size is fixed and the DO bit mirrors
// the request's, so DNSSEC-aware clients keep their signal on synthetic
// answers too.
func ApplyEDNS(resp, req *dns.Msg) {
	reqOpt := req.IsEdns0()
	if reqOpt == nil {
		return
	}
	if resp.IsEdns0() != nil {
		return
	}

	opt := &dns.OPT{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeOPT,
		},
	}
	opt.SetUDPSize(UDPPayloadSize)
	if reqOpt.Do() {
		opt.SetDo()
	}

	resp.Extra = append(resp.Extra, opt)
}

// badVersion reports whether the request carries an EDNS version this server
// does not speak (anything above 0).
func badVersion(req *dns.Msg) bool {
	opt := req.IsEdns0()
	return opt != nil && opt.Version() > 0
}
