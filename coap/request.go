package coap

import (
	"fmt"
	"net/url"

	"github.com/lobaro/coap-client/coapmsg"
)

var validMethods = []string{"GET", "POST", "PUT", "DELETE"}

func ValidMethod(method string) bool {
	for _, m := range validMethods {
		if method == m {
			return true
		}
	}
	return false
}

// Request is a CoAP request to be submitted to an Endpoint. Unlike the
// net/http-shaped blocking Request the teacher modeled this on, it
// carries no body reader: Endpoint.Do returns immediately with the
// request's *Emitter event surface and a cancel func, since the
// underlying exchange may involve many datagrams over many seconds.
type Request struct {
	Method      string
	Confirmable bool

	URL *url.URL

	Options coapmsg.CoapOptions
	Payload []byte

	config *config
}

// NewRequest builds a Request for method against urlStr, with an
// optional payload. An empty method means GET, mirroring the teacher's
// net/http-derived convention.
func NewRequest(method, urlStr string, payload []byte, opts ...Option) (*Request, error) {
	if method == "" {
		method = "GET"
	}
	if !ValidMethod(method) {
		return nil, fmt.Errorf("coap: invalid method %q", method)
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)

	req := &Request{
		Method:      method,
		Confirmable: true,
		URL:         u,
		Options:     make(coapmsg.CoapOptions),
		Payload:     payload,
		config:      newConfig(opts...),
	}
	return req, nil
}

// toMessage builds the wire Message for this request, carrying the full
// payload; the Block1 driver calls it once per block and replaces the
// payload with that block's chunk. token and messageID are allocated by
// the Endpoint.
func (r *Request) toMessage(token []byte, messageID uint16) coapmsg.Message {
	m := coapmsg.NewMessage()
	m.Type = coapmsg.Confirmable
	if !r.Confirmable {
		m.Type = coapmsg.NonConfirmable
	}
	m.Code = methodCode(r.Method)
	m.MessageID = messageID
	m.Token = token
	m.Payload = r.Payload
	for id, opt := range r.Options {
		for _, v := range opt.AllBytes() {
			m.Options().Add(id, v)
		}
	}
	m.SetPathString(r.URL.Path)
	if r.config.hasContentFormat {
		m.Options().Set(coapmsg.ContentFormat, uint32(r.config.contentFormat))
	}
	return m
}

func methodCode(method string) coapmsg.COAPCode {
	switch method {
	case "GET":
		return coapmsg.GET
	case "POST":
		return coapmsg.POST
	case "PUT":
		return coapmsg.PUT
	case "DELETE":
		return coapmsg.DELETE
	default:
		return coapmsg.GET
	}
}
