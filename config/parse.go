package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mjl-/sconf"

	"github.com/jaketus/nginxmailhost/mlog"
)

var ErrConfig = errors.New("config error")

var defaultReloadCommand = []string{"nginx", "-s", "reload"}

const defaultInterval = 15 * time.Second

// Config is the combined parsed configuration: static settings and prepared
// mailhosts with all per-field defaults resolved.
type Config struct {
	Static    Static
	Mailhosts map[string]Mailhost

	MailhostsPath  string
	MailhostsMtime time.Time
}

// ParseConfig parses the static config file at staticPath and mailhosts.conf
// in the same directory, and resolves defaults. Cross-field validation of
// each mailhost is done separately, by the mailhost package.
func ParseConfig(log *mlog.Log, staticPath string) (*Config, []error) {
	c := &Config{
		Static: Static{
			DataDir:  ".",
			Interval: defaultInterval,
		},
	}

	f, err := os.Open(staticPath)
	if err != nil {
		return nil, []error{fmt.Errorf("open config file: %v", err)}
	}
	defer func() {
		log.Check(f.Close(), "closing static config file")
	}()
	if err := sconf.Parse(f, &c.Static); err != nil {
		return nil, []error{fmt.Errorf("parsing %s%v", staticPath, err)}
	}

	if errs := prepareStatic(staticPath, &c.Static); len(errs) > 0 {
		return nil, errs
	}

	c.MailhostsPath = filepath.Join(filepath.Dir(staticPath), "mailhosts.conf")
	if errs := c.ParseMailhosts(log); len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}

// ParseMailhosts (re)parses mailhosts.conf and resolves per-mailhost
// defaults. Serve mode calls this again when the file's mtime changes.
func (c *Config) ParseMailhosts(log *mlog.Log) []error {
	f, err := os.Open(c.MailhostsPath)
	if err != nil {
		return []error{fmt.Errorf("open mailhosts config file: %v", err)}
	}
	defer func() {
		log.Check(f.Close(), "closing mailhosts config file")
	}()
	fi, err := f.Stat()
	if err != nil {
		return []error{fmt.Errorf("stat mailhosts config file: %v", err)}
	}

	var mhs Mailhosts
	if err := sconf.Parse(f, &mhs); err != nil {
		return []error{fmt.Errorf("parsing %s%v", c.MailhostsPath, err)}
	}

	c.Mailhosts = map[string]Mailhost{}
	for name, m := range mhs.Mailhosts {
		c.Mailhosts[name] = prepareMailhost(name, m, c.Static.SSL)
	}
	c.MailhostsMtime = fi.ModTime()
	return nil
}

func prepareStatic(staticPath string, s *Static) (errs []error) {
	addErrorf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...)))
	}

	if !filepath.IsAbs(s.DataDir) {
		s.DataDir = filepath.Join(filepath.Dir(staticPath), s.DataDir)
	}

	logLevels := map[string]mlog.Level{}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if level, ok := mlog.Levels[s.LogLevel]; ok {
		logLevels[""] = level
	} else {
		addErrorf("invalid log level %q", s.LogLevel)
	}
	for pkg, ls := range s.PackageLogLevels {
		if level, ok := mlog.Levels[ls]; ok {
			logLevels[pkg] = level
		} else {
			addErrorf("invalid log level %q for package %q", ls, pkg)
		}
	}
	if len(errs) == 0 {
		mlog.SetConfig(logLevels)
	}

	if s.ConfDir == "" {
		addErrorf("ConfDir must be set")
	}

	if s.FileMode == "" {
		s.Mode = 0644
	} else if mode, err := strconv.ParseUint(s.FileMode, 8, 32); err != nil {
		addErrorf("invalid FileMode %q: %v", s.FileMode, err)
	} else {
		s.Mode = os.FileMode(mode)
	}

	if len(s.ReloadCommand) == 0 {
		s.ReloadCommand = defaultReloadCommand
	}
	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}
	return
}

// prepareMailhost resolves the documented per-field defaults, including the
// global SSL defaults for mailhosts that enable ssl or starttls. Enum and
// cross-field checks are left to mailhost.Validate.
func prepareMailhost(name string, m Mailhost, ssl SSLDefaults) Mailhost {
	if m.Ensure == "" {
		m.Ensure = Present
	}
	if len(m.ListenIP) == 0 {
		m.ListenIP = []string{"*"}
	}
	if m.IPv6Enable {
		if len(m.IPv6ListenIP) == 0 {
			m.IPv6ListenIP = []string{"::"}
		}
		if m.IPv6ListenPort == 0 {
			m.IPv6ListenPort = m.ListenPort
		}
		if m.IPv6ListenOptions == "" {
			m.IPv6ListenOptions = "default ipv6only=on"
		}
	}
	if m.STARTTLS == "" {
		m.STARTTLS = StarttlsOff
	}
	if m.XClient == "" {
		m.XClient = "on"
	}
	if m.ProxyProtocol == "" {
		m.ProxyProtocol = "off"
	}
	if m.ProxyPassErrorMessage == "" {
		m.ProxyPassErrorMessage = "off"
	}
	if len(m.ServerName) == 0 {
		m.ServerName = []string{name}
	}
	if m.SSL || m.STARTTLS != StarttlsOff {
		if m.SSLCiphers == "" {
			m.SSLCiphers = ssl.Ciphers
		}
		if m.SSLProtocols == "" {
			m.SSLProtocols = ssl.Protocols
		}
		if m.SSLPreferServerCiphers == "" {
			m.SSLPreferServerCiphers = ssl.PreferServerCiphers
		}
		if m.SSLSessionCache == "" {
			m.SSLSessionCache = ssl.SessionCache
		}
		if m.SSLSessionTimeout == "" {
			m.SSLSessionTimeout = ssl.SessionTimeout
		}
	}
	return m
}
