package coap

import (
	"net"
	"net/url"
	"strings"
)

// ResolvePeer resolves a request's URL host into the net.Addr Do
// expects. The protocol core never parses URIs beyond this host:port
// lookup (URI path/query parsing into options is a caller concern,
// out of scope per spec.md §1).
func ResolvePeer(u *url.URL) (net.Addr, error) {
	return net.ResolveUDPAddr("udp", canonicalAddr(u))
}

// Given a string of the form "host", "host:port", or "[ipv6::address]:port",
// return true if the string includes a port.
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

var portMap = map[string]string{
	"coap":  "5683",
	"coaps": "5684",
}

// canonicalAddr returns url.Host but always with a ":port" suffix.
func canonicalAddr(u *url.URL) string {
	addr := u.Host
	if !hasPort(addr) {
		return addr + ":" + portMap[u.Scheme]
	}
	return addr
}

// removeEmptyPort strips the empty port in ":port" to ""
// as mandated by RFC 3986 Section 6.2.3. We do the same for CoAP URLs
// as net/http does for HTTP ones.
func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
