package tmpl

import (
	"testing"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/mailhost"
)

func render(t *testing.T, id string, data any) string {
	t.Helper()
	s, err := Render(id, data)
	if err != nil {
		t.Fatalf("render %s: %s", id, err)
	}
	return s
}

func TestRenderMailhost(t *testing.T) {
	srv := &mailhost.Server{
		Name:       "mail.example.test",
		Listen:     []mailhost.Listen{{Addr: "*:143"}},
		ServerName: []string{"mail.example.test"},
		Common: &mailhost.Common{
			Protocol:              "imap",
			AuthHTTP:              "http://localhost:9000/auth",
			XClient:               "on",
			ProxyProtocol:         "off",
			ProxyPassErrorMessage: "off",
		},
		Prepend: &mailhost.PrependAppend{},
		Append:  &mailhost.PrependAppend{},
	}

	want := `server {
  listen *:143;
  server_name mail.example.test;
  protocol imap;
  auth_http http://localhost:9000/auth;
  xclient on;
  proxy_protocol off;
  proxy_pass_error_message off;
}
`
	if got := render(t, "mailhost", srv); got != want {
		t.Fatalf("render mailhost:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderMailhostStarttls(t *testing.T) {
	srv := &mailhost.Server{
		Name:       "mail.example.test",
		Listen:     []mailhost.Listen{{Addr: "*:587"}},
		ServerName: []string{"mail.example.test"},
		STARTTLS:   "only",
		SSL: &mailhost.SSLSettings{
			Cert: "/etc/ssl/mail.crt",
			Key:  "/etc/ssl/mail.pem",
		},
		Common:  &mailhost.Common{Protocol: "smtp"},
		Prepend: &mailhost.PrependAppend{},
		Append:  &mailhost.PrependAppend{},
	}

	want := `server {
  listen *:587;
  server_name mail.example.test;
  starttls only;
  ssl_certificate /etc/ssl/mail.crt;
  ssl_certificate_key /etc/ssl/mail.pem;
  protocol smtp;
}
`
	if got := render(t, "mailhost", srv); got != want {
		t.Fatalf("render mailhost:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderMailhostSSL(t *testing.T) {
	srv := &mailhost.Server{
		Name:       "mail.example.test",
		Listen:     []mailhost.Listen{{Addr: "*:993", Options: "ssl"}},
		ServerName: []string{"mail.example.test", "imap.example.test"},
		SSL: &mailhost.SSLSettings{
			Cert:                "/etc/ssl/mail.crt",
			Key:                 "/etc/ssl/mail.pem",
			Protocols:           "TLSv1.2 TLSv1.3",
			PreferServerCiphers: "on",
			VerifyDepth:         2,
		},
		Common: &mailhost.Common{
			Protocol:         "imap",
			IMAPAuth:         "plain login",
			IMAPCapabilities: []string{"IMAP4rev1", "UIDPLUS"},
		},
		Prepend: &mailhost.PrependAppend{},
		Append:  &mailhost.PrependAppend{},
	}

	want := `server {
  listen *:993 ssl;
  server_name mail.example.test imap.example.test;
  ssl_certificate /etc/ssl/mail.crt;
  ssl_certificate_key /etc/ssl/mail.pem;
  ssl_protocols TLSv1.2 TLSv1.3;
  ssl_prefer_server_ciphers on;
  ssl_verify_depth 2;
  protocol imap;
  imap_auth plain login;
  imap_capabilities "IMAP4rev1" "UIDPLUS";
}
`
	if got := render(t, "mailhost_ssl", srv); got != want {
		t.Fatalf("render mailhost_ssl:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderPrependAppend(t *testing.T) {
	srv := &mailhost.Server{
		Name:       "mail.example.test",
		Listen:     []mailhost.Listen{{Addr: "*:143"}},
		ServerName: []string{"mail.example.test"},
		Common:     &mailhost.Common{},
		Prepend: &mailhost.PrependAppend{
			Directives: []config.Directive{
				{Name: "satisfy", Value: []string{"any"}},
				{Name: "error_log", Value: []string{"/var/log/nginx/mail_error.log", "/var/log/nginx/mail_debug.log debug"}},
			},
			Raw: []string{"allow 10.0.0.0/8;", "deny all;"},
		},
		Append: &mailhost.PrependAppend{
			Directives: []config.Directive{
				{Name: "limits", Block: []config.Directive{{Name: "burst", Value: []string{"10"}}, {Name: "nodelay"}}},
			},
			Raw: []string{"# managed block end"},
		},
	}

	want := `server {
  satisfy any;
  error_log /var/log/nginx/mail_error.log;
  error_log /var/log/nginx/mail_debug.log debug;
  allow 10.0.0.0/8;
  deny all;
  listen *:143;
  server_name mail.example.test;
  limits {
    burst 10;
    nodelay;
  }
  # managed block end
}
`
	if got := render(t, "mailhost", srv); got != want {
		t.Fatalf("render mailhost:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderDeterministic(t *testing.T) {
	srv := &mailhost.Server{
		Name:       "mail.example.test",
		Listen:     []mailhost.Listen{{Addr: "*:143"}},
		ServerName: []string{"mail.example.test"},
		Common:     &mailhost.Common{Protocol: "imap"},
		Prepend:    &mailhost.PrependAppend{},
		Append:     &mailhost.PrependAppend{},
	}
	a := render(t, "mailhost", srv)
	b := render(t, "mailhost", srv)
	if a != b {
		t.Fatalf("render not deterministic:\n%s\n%s", a, b)
	}
}
