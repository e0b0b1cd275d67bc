package mailhost

import (
	"fmt"

	"github.com/jaketus/nginxmailhost/config"
)

// Fragment is one planned chunk of the rendered file: a template identity
// with its data, placed by OrderKey. Fragments of one file are concatenated
// in ascending case-sensitive lexicographic OrderKey order.
type Fragment struct {
	OrderKey   string
	TemplateID string
	Data       any
}

// Order keys. Lexicographic ordering puts the plaintext block before the TLS
// block regardless of planning order.
const (
	orderHeader = "001"
	orderSSL    = "700"
)

// Server is the template data for one rendered server block. The SSL, Common,
// Prepend and Append sub-blocks are computed once per Spec and shared by the
// plaintext and TLS blocks.
type Server struct {
	Name       string
	Listen     []Listen
	ServerName []string
	// STARTTLS mode, empty when no starttls directive is emitted.
	STARTTLS string
	SSL      *SSLSettings
	Common   *Common
	Prepend  *PrependAppend
	Append   *PrependAppend
}

// Listen is one listen directive: address and verbatim trailing options.
type Listen struct {
	Addr    string
	Options string
}

// SSLSettings are the ssl_* directives of a server block. Zero values are
// omitted from output.
type SSLSettings struct {
	Cert                string
	Key                 string
	ClientCert          string
	CRL                 string
	DHParam             string
	ECDHCurve           string
	PasswordFile        string
	TrustedCert         string
	SessionTicketKey    string
	Ciphers             string
	Protocols           string
	PreferServerCiphers string
	SessionCache        string
	SessionTimeout      string
	SessionTickets      string
	VerifyDepth         int
}

// Common are the protocol, authentication and proxying directives shared by
// the plaintext and TLS server blocks. Zero values are omitted from output.
type Common struct {
	Protocol              string
	AuthHTTP              string
	AuthHTTPHeader        string
	XClient               string
	ProxyProtocol         string
	ProxySMTPAuth         string
	IMAPAuth              string
	IMAPCapabilities      []string
	IMAPClientBuffer      string
	POP3Auth              string
	POP3Capabilities      []string
	SMTPAuth              string
	SMTPCapabilities      []string
	ProxyPassErrorMessage string
}

// PrependAppend is injected configuration: structured directives first, then
// raw lines verbatim.
type PrependAppend struct {
	Directives []config.Directive
	Raw        []string
}

// Plan returns the ordered fragments for this mailhost. Pure: planning the
// same Spec twice yields fragments that render to byte-identical text.
//
// The plaintext block (order key "001") is omitted when SSLPort is set and
// equal to ListenPort: the TLS block carries its own listen directives, and
// emitting both would claim the same port twice. The TLS block (order key
// "700") is emitted when SSL is enabled.
func (s Spec) Plan() []Fragment {
	ssl := s.sslSettings()
	common := s.common()
	prepend := &PrependAppend{Directives: s.CfgPrepend, Raw: s.RawPrepend}
	app := &PrependAppend{Directives: s.CfgAppend, Raw: s.RawAppend}

	var frags []Fragment

	if s.SSLPort == 0 || s.ListenPort != s.SSLPort {
		header := &Server{
			Name:       s.Name,
			Listen:     s.listens(s.ListenPort, s.IPv6ListenPort, ""),
			ServerName: s.ServerName,
			Common:     common,
			Prepend:    prepend,
			Append:     app,
		}
		if s.STARTTLS != config.StarttlsOff {
			header.STARTTLS = s.STARTTLS
			header.SSL = ssl
		}
		frags = append(frags, Fragment{orderHeader, "mailhost", header})
	}

	if s.SSL {
		frags = append(frags, Fragment{orderSSL, "mailhost_ssl", &Server{
			Name:       s.Name,
			Listen:     s.listens(s.SSLPort, s.SSLPort, "ssl"),
			ServerName: s.ServerName,
			SSL:        ssl,
			Common:     common,
			Prepend:    prepend,
			Append:     app,
		}})
	}

	return frags
}

// listens builds the listen directives: one per IPv4 address, then one per
// effective IPv6 address. extra is appended after the configured options,
// "ssl" for the TLS block.
func (s Spec) listens(port, ipv6Port int, extra string) []Listen {
	join := func(opts ...string) string {
		r := ""
		for _, o := range opts {
			if o == "" {
				continue
			}
			if r != "" {
				r += " "
			}
			r += o
		}
		return r
	}

	var ls []Listen
	for _, ip := range s.ListenIP {
		ls = append(ls, Listen{fmt.Sprintf("%s:%d", ip, port), join(s.ListenOptions, extra)})
	}
	for _, ip := range s.EffectiveIPv6ListenIP {
		ls = append(ls, Listen{fmt.Sprintf("[%s]:%d", ip, ipv6Port), join(s.IPv6ListenOptions, extra)})
	}
	return ls
}

func (s Spec) sslSettings() *SSLSettings {
	return &SSLSettings{
		Cert:                s.SSLCert,
		Key:                 s.SSLKey,
		ClientCert:          s.SSLClientCert,
		CRL:                 s.SSLCRL,
		DHParam:             s.SSLDHParam,
		ECDHCurve:           s.SSLECDHCurve,
		PasswordFile:        s.SSLPasswordFile,
		TrustedCert:         s.SSLTrustedCert,
		SessionTicketKey:    s.SSLSessionTicketKey,
		Ciphers:             s.SSLCiphers,
		Protocols:           s.SSLProtocols,
		PreferServerCiphers: s.SSLPreferServerCiphers,
		SessionCache:        s.SSLSessionCache,
		SessionTimeout:      s.SSLSessionTimeout,
		SessionTickets:      s.SSLSessionTickets,
		VerifyDepth:         s.SSLVerifyDepth,
	}
}

func (s Spec) common() *Common {
	return &Common{
		Protocol:              s.Protocol,
		AuthHTTP:              s.AuthHTTP,
		AuthHTTPHeader:        s.AuthHTTPHeader,
		XClient:               s.XClient,
		ProxyProtocol:         s.ProxyProtocol,
		ProxySMTPAuth:         s.ProxySMTPAuth,
		IMAPAuth:              s.IMAPAuth,
		IMAPCapabilities:      s.IMAPCapabilities,
		IMAPClientBuffer:      s.IMAPClientBuffer,
		POP3Auth:              s.POP3Auth,
		POP3Capabilities:      s.POP3Capabilities,
		SMTPAuth:              s.SMTPAuth,
		SMTPCapabilities:      s.SMTPCapabilities,
		ProxyPassErrorMessage: s.ProxyPassErrorMessage,
	}
}

// AsStrings coerces a scalar-or-list value into list form: a string becomes a
// single-element list, a []string passes through unchanged, nil stays nil.
// Used where a value may be declared as either a single address/line or a
// list of them, e.g. listen address overrides on the command line.
func AsStrings(v any) []string {
	switch r := v.(type) {
	case nil:
		return nil
	case string:
		if r == "" {
			return nil
		}
		return []string{r}
	case []string:
		return r
	default:
		return []string{fmt.Sprint(v)}
	}
}
