package mailhost

import (
	"errors"
	"testing"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/mlog"
)

var testlog = mlog.New("mailhost")

// testMailhost returns a mailhost as the config package prepares it, with
// per-field defaults resolved.
func testMailhost() config.Mailhost {
	return config.Mailhost{
		Ensure:                config.Present,
		ListenIP:              []string{"*"},
		ListenPort:            143,
		STARTTLS:              config.StarttlsOff,
		XClient:               "on",
		ProxyProtocol:         "off",
		ProxyPassErrorMessage: "off",
	}
}

func TestValidateTLSMaterial(t *testing.T) {
	good := func(m config.Mailhost) {
		t.Helper()
		if _, errs := Validate(testlog, "mail.example.test", m, false); len(errs) != 0 {
			t.Fatalf("validate: unexpected errors %v", errs)
		}
	}
	missing := func(m config.Mailhost) {
		t.Helper()
		_, errs := Validate(testlog, "mail.example.test", m, false)
		if len(errs) == 0 {
			t.Fatalf("validate: expected missing tls material error, got none")
		}
		for _, err := range errs {
			if errors.Is(err, ErrMissingTLSMaterial) {
				return
			}
		}
		t.Fatalf("validate: expected ErrMissingTLSMaterial, got %v", errs)
	}

	// No ssl, no starttls: cert and key can be absent.
	good(testMailhost())

	m := testMailhost()
	m.SSL = true
	missing(m)

	m = testMailhost()
	m.SSL = true
	m.SSLCert = "/tmp/server.crt"
	missing(m) // Key still missing.

	m = testMailhost()
	m.SSL = true
	m.SSLKey = "/tmp/server.pem"
	missing(m) // Cert still missing.

	m = testMailhost()
	m.STARTTLS = config.StarttlsOn
	missing(m)

	m = testMailhost()
	m.STARTTLS = config.StarttlsOnly
	missing(m)

	m = testMailhost()
	m.SSL = true
	m.STARTTLS = config.StarttlsOnly
	m.SSLCert = "/tmp/server.crt"
	m.SSLKey = "/tmp/server.pem"
	good(m)
}

func TestValidateIPv6(t *testing.T) {
	m := testMailhost()
	m.IPv6Enable = true
	m.IPv6ListenIP = []string{"::"}
	m.IPv6ListenPort = 143
	m.IPv6ListenOptions = "default ipv6only=on"

	// Host with ipv6: the addresses are effective.
	spec, errs := Validate(testlog, "mail.example.test", m, true)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
	if len(spec.EffectiveIPv6ListenIP) != 1 || spec.EffectiveIPv6ListenIP[0] != "::" {
		t.Fatalf("effective ipv6 listen ips, got %v, want [::]", spec.EffectiveIPv6ListenIP)
	}

	// Host without ipv6: soft warning, no error, no effective addresses.
	spec, errs = Validate(testlog, "mail.example.test", m, false)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
	if len(spec.EffectiveIPv6ListenIP) != 0 {
		t.Fatalf("effective ipv6 listen ips, got %v, want none", spec.EffectiveIPv6ListenIP)
	}
}

func TestValidateEnums(t *testing.T) {
	bad := func(f func(m *config.Mailhost)) {
		t.Helper()
		m := testMailhost()
		f(&m)
		if _, errs := Validate(testlog, "mail.example.test", m, false); len(errs) == 0 {
			t.Fatalf("validate: expected error for %+v", m)
		}
	}

	bad(func(m *config.Mailhost) { m.Ensure = "gone" })
	bad(func(m *config.Mailhost) { m.ListenPort = 0 })
	bad(func(m *config.Mailhost) { m.ListenPort = 70000 })
	bad(func(m *config.Mailhost) { m.SSLPort = -1 })
	bad(func(m *config.Mailhost) { m.STARTTLS = "maybe" })
	bad(func(m *config.Mailhost) { m.Protocol = "nntp" })
	bad(func(m *config.Mailhost) { m.XClient = "yes" })
	bad(func(m *config.Mailhost) { m.ProxyProtocol = "true" })
	bad(func(m *config.Mailhost) { m.SSLPreferServerCiphers = "enabled" })

	m := testMailhost()
	m.Protocol = "imap"
	if _, errs := Validate(testlog, "mail.example.test", m, false); len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
}

func TestValidateServerName(t *testing.T) {
	m := testMailhost()
	spec, errs := Validate(testlog, "mail.example.test", m, false)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
	if len(spec.ServerName) != 1 || spec.ServerName[0] != "mail.example.test" {
		t.Fatalf("server name, got %v, want [mail.example.test]", spec.ServerName)
	}

	m.ServerName = []string{"a.example.test", "b.example.test"}
	spec, errs = Validate(testlog, "mail.example.test", m, false)
	if len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
	if len(spec.ServerName) != 2 {
		t.Fatalf("server name, got %v, want both declared names", spec.ServerName)
	}
}

func TestValidateDirectives(t *testing.T) {
	bad := func(d config.Directive) {
		t.Helper()
		m := testMailhost()
		m.CfgAppend = []config.Directive{d}
		if _, errs := Validate(testlog, "mail.example.test", m, false); len(errs) == 0 {
			t.Fatalf("validate: expected error for directive %+v", d)
		}
	}

	bad(config.Directive{})
	bad(config.Directive{Name: "both", Value: []string{"x"}, Block: []config.Directive{{Name: "sub"}}})
	bad(config.Directive{Name: "deep", Block: []config.Directive{{Name: "sub", Block: []config.Directive{{Name: "subsub"}}}}})

	m := testMailhost()
	m.CfgAppend = []config.Directive{
		{Name: "satisfy", Value: []string{"any"}},
		{Name: "limits", Block: []config.Directive{{Name: "burst", Value: []string{"10"}}}},
	}
	if _, errs := Validate(testlog, "mail.example.test", m, false); len(errs) != 0 {
		t.Fatalf("validate: unexpected errors %v", errs)
	}
}
