package mailhost

import (
	"reflect"
	"testing"

	"github.com/jaketus/nginxmailhost/config"
)

func testSpec(t *testing.T, f func(m *config.Mailhost)) Spec {
	t.Helper()
	m := testMailhost()
	f(&m)
	spec, errs := Validate(testlog, "mail.example.test", m, false)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
	return spec
}

func TestPlanHeaderOnly(t *testing.T) {
	spec := testSpec(t, func(m *config.Mailhost) {
		m.Protocol = "imap"
		m.AuthHTTP = "http://localhost:9000/auth"
	})

	frags := spec.Plan()
	if len(frags) != 1 {
		t.Fatalf("plan: got %d fragments, want 1", len(frags))
	}
	if frags[0].OrderKey != "001" || frags[0].TemplateID != "mailhost" {
		t.Fatalf("plan: got %s/%s, want 001/mailhost", frags[0].OrderKey, frags[0].TemplateID)
	}
	srv := frags[0].Data.(*Server)
	if srv.STARTTLS != "" || srv.SSL != nil {
		t.Fatalf("plan: starttls off must not emit starttls or ssl settings, got %+v", srv)
	}
	want := []Listen{{Addr: "*:143"}}
	if !reflect.DeepEqual(srv.Listen, want) {
		t.Fatalf("plan: listen, got %v, want %v", srv.Listen, want)
	}
}

func TestPlanHeaderAndSSL(t *testing.T) {
	spec := testSpec(t, func(m *config.Mailhost) {
		m.ListenPort = 587
		m.SSL = true
		m.SSLPort = 465
		m.STARTTLS = config.StarttlsOnly
		m.SSLCert = "/etc/ssl/mail.crt"
		m.SSLKey = "/etc/ssl/mail.pem"
	})

	frags := spec.Plan()
	if len(frags) != 2 {
		t.Fatalf("plan: got %d fragments, want 2", len(frags))
	}
	if frags[0].OrderKey >= frags[1].OrderKey {
		t.Fatalf("plan: order keys %q, %q not ascending", frags[0].OrderKey, frags[1].OrderKey)
	}
	header := frags[0].Data.(*Server)
	tls := frags[1].Data.(*Server)
	if header.STARTTLS != config.StarttlsOnly {
		t.Fatalf("plan: header starttls, got %q, want only", header.STARTTLS)
	}
	if header.SSL == nil || tls.SSL == nil {
		t.Fatalf("plan: both blocks need ssl settings with starttls only + ssl")
	}
	// Sub-blocks are computed once and shared.
	if header.SSL != tls.SSL || header.Common != tls.Common || header.Prepend != tls.Prepend || header.Append != tls.Append {
		t.Fatalf("plan: sub-blocks not shared between fragments")
	}
	want := []Listen{{Addr: "*:465", Options: "ssl"}}
	if !reflect.DeepEqual(tls.Listen, want) {
		t.Fatalf("plan: tls listen, got %v, want %v", tls.Listen, want)
	}
}

func TestPlanHeaderSuppressed(t *testing.T) {
	spec := testSpec(t, func(m *config.Mailhost) {
		m.ListenPort = 993
		m.SSL = true
		m.SSLPort = 993
		m.SSLCert = "/etc/ssl/mail.crt"
		m.SSLKey = "/etc/ssl/mail.pem"
	})

	frags := spec.Plan()
	if len(frags) != 1 {
		t.Fatalf("plan: got %d fragments, want only the tls block", len(frags))
	}
	if frags[0].OrderKey != "700" || frags[0].TemplateID != "mailhost_ssl" {
		t.Fatalf("plan: got %s/%s, want 700/mailhost_ssl", frags[0].OrderKey, frags[0].TemplateID)
	}
}

func TestPlanIdempotent(t *testing.T) {
	spec := testSpec(t, func(m *config.Mailhost) {
		m.SSL = true
		m.SSLPort = 465
		m.SSLCert = "/etc/ssl/mail.crt"
		m.SSLKey = "/etc/ssl/mail.pem"
		m.CfgPrepend = []config.Directive{{Name: "satisfy", Value: []string{"any"}}}
		m.RawAppend = []string{"# generated"}
	})

	a := spec.Plan()
	b := spec.Plan()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("plan: not deterministic:\n%v\n%v", a, b)
	}
}

func TestPlanListens(t *testing.T) {
	m := testMailhost()
	m.ListenIP = []string{"192.0.2.10", "192.0.2.11"}
	m.ListenOptions = "default_server"
	m.IPv6Enable = true
	m.IPv6ListenIP = []string{"2001:db8::1"}
	m.IPv6ListenPort = 144
	m.IPv6ListenOptions = "ipv6only=on"
	spec, errs := Validate(testlog, "mail.example.test", m, true)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}

	srv := spec.Plan()[0].Data.(*Server)
	want := []Listen{
		{Addr: "192.0.2.10:143", Options: "default_server"},
		{Addr: "192.0.2.11:143", Options: "default_server"},
		{Addr: "[2001:db8::1]:144", Options: "ipv6only=on"},
	}
	if !reflect.DeepEqual(srv.Listen, want) {
		t.Fatalf("plan: listen, got %v, want %v", srv.Listen, want)
	}
}

func TestAsStrings(t *testing.T) {
	check := func(v any, want []string) {
		t.Helper()
		if got := AsStrings(v); !reflect.DeepEqual(got, want) {
			t.Fatalf("asstrings %v: got %v, want %v", v, got, want)
		}
	}

	check(nil, nil)
	check("", nil)
	check("127.0.0.1", []string{"127.0.0.1"})
	check([]string{"a", "b"}, []string{"a", "b"})
	check(25, []string{"25"})
}
