// Package config holds the configuration data types for nginxmailhost: the
// static program settings from nginxmailhost.conf and the declared mail-proxy
// server blocks from mailhosts.conf.
package config

import (
	"io/fs"
	"time"
)

// Ensure values for a mailhost.
const (
	Present = "present"
	Absent  = "absent"
)

// STARTTLS modes for a mailhost.
const (
	StarttlsOn   = "on"
	StarttlsOff  = "off"
	StarttlsOnly = "only"
)

// Static is a parsed form of the nginxmailhost.conf configuration file.
type Static struct {
	DataDir          string            `sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nDirectory where state is stored, e.g. the database tracking written configuration files. If this is a relative path, it is relative to the directory of nginxmailhost.conf."`
	LogLevel         string            `sconf:"optional" sconf-doc:"Default log level, one of: error, warn, info, debug. Default: info."`
	PackageLogLevels map[string]string `sconf:"optional" sconf-doc:"Overrides of log level per package (e.g. mailhost, fragfile)."`
	ConfDir          string            `sconf-doc:"Nginx configuration directory, e.g. /etc/nginx. Rendered mailhost files are written to conf.mail.d/ below it, one file per mailhost, named <name>.conf. The enclosing nginx configuration must include that directory inside its mail block."`
	Owner            string            `sconf:"optional" sconf-doc:"Owner of written configuration files, a user name or numeric uid. If empty, ownership is left as-is."`
	Group            string            `sconf:"optional" sconf-doc:"Group of written configuration files, a group name or numeric gid. If empty, group is left as-is."`
	FileMode         string            `sconf:"optional" sconf-doc:"Permissions of written configuration files, octal, e.g. 0644 (the default)."`
	ReloadCommand    []string          `sconf:"optional" sconf-doc:"Command to reload nginx after a content change, run once per convergence pass. Default: nginx -s reload."`
	MetricsAddress   string            `sconf:"optional" sconf-doc:"Address to serve Prometheus metrics on in serve mode, e.g. localhost:8010. If empty, no metrics are served."`
	Interval         time.Duration     `sconf:"optional" sconf-doc:"How often serve mode checks mailhosts.conf for changes. Default: 15s."`
	SSL              SSLDefaults       `sconf:"optional" sconf-doc:"Default SSL settings, merged into each mailhost that enables ssl or starttls and does not set its own value."`

	Mode fs.FileMode `sconf:"-" json:"-"` // Parsed FileMode.
}

// SSLDefaults are global SSL settings a mailhost inherits unless it sets its
// own. They are resolved into the mailhost at parse time, rendering never
// looks at global state.
type SSLDefaults struct {
	Ciphers             string `sconf:"optional" sconf-doc:"Default for SSLCiphers."`
	Protocols           string `sconf:"optional" sconf-doc:"Default for SSLProtocols, e.g. TLSv1.2 TLSv1.3."`
	PreferServerCiphers string `sconf:"optional" sconf-doc:"Default for SSLPreferServerCiphers, on or off."`
	SessionCache        string `sconf:"optional" sconf-doc:"Default for SSLSessionCache."`
	SessionTimeout      string `sconf:"optional" sconf-doc:"Default for SSLSessionTimeout, e.g. 5m."`
}

// Mailhosts is the parsed form of mailhosts.conf, the declared mail-proxy
// server blocks keyed by name.
type Mailhosts struct {
	Mailhosts map[string]Mailhost `sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nMail-proxy server blocks. The key is used as the output file name and as the default ServerName."`
}

// Mailhost is one declared mail-proxy server block. A mailhost renders to one
// file, {ConfDir}/conf.mail.d/{name}.conf, holding a plaintext server block
// and, with SSL enabled, a TLS server block.
type Mailhost struct {
	Ensure            string   `sconf:"optional" sconf-doc:"present (default) to write the file, absent to remove it."`
	ListenIP          []string `sconf:"optional" sconf-doc:"Addresses to listen on. Use * for all addresses. Default: *."`
	ListenPort        int      `sconf-doc:"Port to listen on, e.g. 143 for IMAP or 587 for submission."`
	ListenOptions     string   `sconf:"optional" sconf-doc:"Extra listen directive options, appended verbatim, e.g. default_server."`
	IPv6Enable        bool     `sconf:"optional" sconf-doc:"Also emit IPv6 listen directives. If the host has no IPv6 connectivity a warning is logged and the IPv6 directives are omitted."`
	IPv6ListenIP      []string `sconf:"optional" sconf-doc:"IPv6 addresses to listen on. Default: ::."`
	IPv6ListenPort    int      `sconf:"optional" sconf-doc:"Port for IPv6 listen directives. Default: ListenPort."`
	IPv6ListenOptions string   `sconf:"optional" sconf-doc:"Extra options for IPv6 listen directives. Default: default ipv6only=on."`

	SSL                    bool   `sconf:"optional" sconf-doc:"Emit an additional TLS server block, listening on SSLPort. Requires SSLCert and SSLKey."`
	SSLPort                int    `sconf:"optional" sconf-doc:"Port for the TLS server block, e.g. 993. When equal to ListenPort only the TLS block is emitted, so the two blocks never claim the same port."`
	SSLCert                string `sconf:"optional" sconf-doc:"Path to the certificate, required when SSL is enabled or STARTTLS is on or only."`
	SSLKey                 string `sconf:"optional" sconf-doc:"Path to the private key, required when SSL is enabled or STARTTLS is on or only."`
	SSLClientCert          string `sconf:"optional" sconf-doc:"Path to a client certificate CA for verifying clients."`
	SSLCRL                 string `sconf:"optional" sconf-doc:"Path to a certificate revocation list."`
	SSLDHParam             string `sconf:"optional" sconf-doc:"Path to Diffie-Hellman parameters."`
	SSLECDHCurve           string `sconf:"optional" sconf-doc:"Curve for ECDHE ciphers."`
	SSLPasswordFile        string `sconf:"optional" sconf-doc:"Path to a file with passphrases for the private key."`
	SSLTrustedCert         string `sconf:"optional" sconf-doc:"Path to trusted CA certificates for verifying upstream."`
	SSLSessionTicketKey    string `sconf:"optional" sconf-doc:"Path to a session ticket key file."`
	SSLCiphers             string `sconf:"optional" sconf-doc:"Enabled ciphers. Default: global SSL Ciphers."`
	SSLProtocols           string `sconf:"optional" sconf-doc:"Enabled protocols. Default: global SSL Protocols."`
	SSLPreferServerCiphers string `sconf:"optional" sconf-doc:"Prefer server ciphers over client ciphers, on or off. Default: global setting."`
	SSLSessionCache        string `sconf:"optional" sconf-doc:"Session cache configuration. Default: global setting."`
	SSLSessionTimeout      string `sconf:"optional" sconf-doc:"Session timeout, e.g. 5m. Default: global setting."`
	SSLSessionTickets      string `sconf:"optional" sconf-doc:"Session resumption through TLS session tickets, on or off."`
	SSLVerifyDepth         int    `sconf:"optional" sconf-doc:"Verification depth for client certificate chains."`

	STARTTLS string `sconf:"optional" sconf-doc:"STARTTLS support on the plaintext listener: off (default), on, or only. on and only require SSLCert and SSLKey."`
	Protocol string `sconf:"optional" sconf-doc:"Mail protocol of this server block: imap, pop3, sieve or smtp."`

	AuthHTTP       string `sconf:"optional" sconf-doc:"URL of the HTTP authentication server, e.g. http://localhost:9000/auth."`
	AuthHTTPHeader string `sconf:"optional" sconf-doc:"Extra header passed to the authentication server, emitted verbatim as auth_http_header name value."`
	XClient        string `sconf:"optional" sconf-doc:"Pass client information to the backend with the XCLIENT command, on or off. Default: on."`
	ProxyProtocol  string `sconf:"optional" sconf-doc:"Use the PROXY protocol towards the backend, on or off. Default: off."`
	ProxySMTPAuth  string `sconf:"optional" sconf-doc:"Authenticate to the SMTP backend with the AUTH command, on or off. Omitted when unset."`

	IMAPAuth         string   `sconf:"optional" sconf-doc:"Permitted IMAP authentication methods, e.g. login plain."`
	IMAPCapabilities []string `sconf:"optional" sconf-doc:"IMAP capabilities advertised to clients."`
	IMAPClientBuffer string   `sconf:"optional" sconf-doc:"Buffer size for IMAP commands, e.g. 8k."`
	POP3Auth         string   `sconf:"optional" sconf-doc:"Permitted POP3 authentication methods."`
	POP3Capabilities []string `sconf:"optional" sconf-doc:"POP3 capabilities advertised to clients."`
	SMTPAuth         string   `sconf:"optional" sconf-doc:"Permitted SMTP authentication methods."`
	SMTPCapabilities []string `sconf:"optional" sconf-doc:"SMTP capabilities advertised in the EHLO response."`

	ProxyPassErrorMessage string `sconf:"optional" sconf-doc:"Pass backend error messages to the client, on or off. Default: off."`

	ServerName []string `sconf:"optional" sconf-doc:"Server names of this block. Default: the mailhost name."`

	RawPrepend []string    `sconf:"optional" sconf-doc:"Raw configuration lines placed at the top of each server block, verbatim, after the structured CfgPrepend directives. Include trailing semicolons."`
	RawAppend  []string    `sconf:"optional" sconf-doc:"Raw configuration lines placed at the bottom of each server block, verbatim, after the structured CfgAppend directives. Include trailing semicolons."`
	CfgPrepend []Directive `sconf:"optional" sconf-doc:"Structured directives placed at the top of each server block, before RawPrepend."`
	CfgAppend  []Directive `sconf:"optional" sconf-doc:"Structured directives placed at the bottom of each server block, before RawAppend."`
}

// Directive is one structured configuration directive. With only a name it
// renders as "name;", with values as one "name value;" line per value, and
// with a block as "name { ... }". Blocks nest one level: a directive inside a
// block cannot itself have a block.
type Directive struct {
	Name  string      `sconf-doc:"Directive name, emitted verbatim."`
	Value []string    `sconf:"optional" sconf-doc:"Directive values, one rendered line per value."`
	Block []Directive `sconf:"optional" sconf-doc:"Nested directives, rendered as a { } block."`
}
