// Package mailhost validates declared mail-proxy server blocks and plans the
// ordered configuration fragments that render into one file per mailhost.
package mailhost

import (
	"errors"
	"fmt"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/mlog"
)

// ErrMissingTLSMaterial is returned from Validate when ssl is enabled or
// starttls is on/only without both a certificate and a key. Fatal for the
// mailhost: no file is written.
var ErrMissingTLSMaterial = errors.New("ssl or starttls requires both SSLCert and SSLKey")

// Spec is a validated mailhost, with derived fields, ready for planning.
// Immutable after Validate.
type Spec struct {
	Name string
	config.Mailhost

	// IPv6 listen addresses actually emitted: IPv6ListenIP when IPv6 is
	// enabled and the host supports it, empty otherwise.
	EffectiveIPv6ListenIP []string
}

var onOff = map[string]bool{"on": true, "off": true}

var protocols = map[string]bool{"imap": true, "pop3": true, "sieve": true, "smtp": true}

// Validate checks the cross-field constraints of one prepared mailhost and
// derives the effective values rendering needs. hostHasIPv6 is an external
// fact, see facts.HasIPv6. An unsupported-IPv6 situation is a warning, not an
// error: the IPv6 listen directives are dropped and convergence continues.
func Validate(log *mlog.Log, name string, m config.Mailhost, hostHasIPv6 bool) (Spec, []error) {
	var errs []error
	addErrorf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("mailhost %s: %s", name, fmt.Sprintf(format, args...)))
	}
	checkPort := func(what string, port int, mandatory bool) {
		if port == 0 && !mandatory {
			return
		}
		if port <= 0 || port > 65535 {
			addErrorf("%s must be in range 1-65535, saw %d", what, port)
		}
	}

	switch m.Ensure {
	case config.Present, config.Absent:
	default:
		addErrorf("Ensure must be present or absent, saw %q", m.Ensure)
	}

	checkPort("ListenPort", m.ListenPort, true)
	checkPort("SSLPort", m.SSLPort, false)
	if m.IPv6Enable {
		checkPort("IPv6ListenPort", m.IPv6ListenPort, false)
	}

	switch m.STARTTLS {
	case config.StarttlsOn, config.StarttlsOff, config.StarttlsOnly:
	default:
		addErrorf("STARTTLS must be on, off or only, saw %q", m.STARTTLS)
	}

	if m.Protocol != "" && !protocols[m.Protocol] {
		addErrorf("Protocol must be imap, pop3, sieve or smtp, saw %q", m.Protocol)
	}

	checkOnOff := func(what, v string) {
		if v != "" && !onOff[v] {
			addErrorf("%s must be on or off, saw %q", what, v)
		}
	}
	checkOnOff("XClient", m.XClient)
	checkOnOff("ProxyProtocol", m.ProxyProtocol)
	checkOnOff("ProxySMTPAuth", m.ProxySMTPAuth)
	checkOnOff("ProxyPassErrorMessage", m.ProxyPassErrorMessage)
	checkOnOff("SSLPreferServerCiphers", m.SSLPreferServerCiphers)
	checkOnOff("SSLSessionTickets", m.SSLSessionTickets)

	if m.SSL || m.STARTTLS == config.StarttlsOn || m.STARTTLS == config.StarttlsOnly {
		if m.SSLCert == "" || m.SSLKey == "" {
			errs = append(errs, fmt.Errorf("mailhost %s: %w", name, ErrMissingTLSMaterial))
		}
	}

	for _, d := range m.CfgPrepend {
		checkDirective(addErrorf, "CfgPrepend", d, false)
	}
	for _, d := range m.CfgAppend {
		checkDirective(addErrorf, "CfgAppend", d, false)
	}

	spec := Spec{Name: name, Mailhost: m}
	if len(spec.ServerName) == 0 {
		spec.ServerName = []string{name}
	}
	if m.IPv6Enable {
		if hostHasIPv6 {
			spec.EffectiveIPv6ListenIP = m.IPv6ListenIP
		} else {
			log.Warn("ipv6 listen requested but host has no ipv6 connectivity, omitting ipv6 listen directives", mlog.Field("mailhost", name))
		}
	}

	if len(errs) > 0 {
		return Spec{}, errs
	}
	return spec, nil
}

func checkDirective(addErrorf func(string, ...any), what string, d config.Directive, nested bool) {
	if d.Name == "" {
		addErrorf("%s: directive without name", what)
	}
	if len(d.Block) == 0 {
		return
	}
	if nested {
		addErrorf("%s: directive %s: blocks can nest only one level", what, d.Name)
		return
	}
	if len(d.Value) > 0 {
		addErrorf("%s: directive %s: cannot have both values and a block", what, d.Name)
	}
	for _, sub := range d.Block {
		checkDirective(addErrorf, what, sub, true)
	}
}
