// Command nginxmailhost renders nginx mail-proxy server blocks from
// declarative configuration, writes them as managed files under the nginx
// configuration directory and reloads nginx when content changed.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/mjl-/sconf"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/mlog"
)

var xlog = mlog.New("main")

var configPath string

func envString(k, def string) string {
	s := os.Getenv(k)
	if s == "" {
		return def
	}
	return s
}

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"apply", cmdApply},
	{"check", cmdCheck},
	{"print", cmdPrint},
	{"serve", cmdServe},
	{"state list", cmdStateList},
	{"config test", cmdCheck},
	{"config describe-static", cmdConfigDescribeStatic},
	{"config describe-mailhosts", cmdConfigDescribeMailhosts},
	{"version", cmdVersion},
	{"help", cmdHelp},
}

var cmds []cmd

func init() {
	for _, xc := range commands {
		c := cmd{words: strings.Split(xc.cmd, " "), fn: xc.fn}
		cmds = append(cmds, c)
	}
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	// Set before calling command.
	flag     *flag.FlagSet
	flagArgs []string
	_gather  bool // Set when using Parse to gather usage for a command.

	// Set by invoked command or Parse.
	params string // Arguments to command. Multiple lines possible.
	help   string // Additional explanation. First line is synopsis, the rest is only printed for an explicit help/usage for that command.
	args   []string

	log *mlog.Log
}

func (c *cmd) Parse() []string {
	// To gather params and usage information, we just run the command but cause
	// this panic after the command has registered its flags and set its params
	// and help information. This is then caught and that info printed.
	if c._gather {
		panic("gather")
	}

	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) gather() {
	c.flag = flag.NewFlagSet("nginxmailhost "+strings.Join(c.words, " "), flag.ExitOnError)
	c._gather = true
	defer func() {
		x := recover()
		// panic generated by Parse.
		if x != "gather" {
			panic(x)
		}
	}()
	c.fn(c)
}

func (c *cmd) makeUsage() string {
	var r strings.Builder
	cs := "nginxmailhost " + strings.Join(c.words, " ")
	for i, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
		s := ""
		if i == 0 {
			s = "usage:"
		}
		if line != "" {
			line = " " + line
		}
		fmt.Fprintf(&r, "%6s %s%s\n", s, cs, line)
	}
	c.flag.SetOutput(&r)
	c.flag.PrintDefaults()
	return r.String()
}

func (c *cmd) printUsage() {
	fmt.Fprint(os.Stderr, c.makeUsage())
	if c.help != "" {
		fmt.Fprint(os.Stderr, "\n"+c.help+"\n")
	}
}

func (c *cmd) Usage() {
	c.printUsage()
	os.Exit(2)
}

func cmdHelp(c *cmd) {
	c.params = "[command ...]"
	c.help = "Prints help about matching commands."
	args := c.Parse()
	if len(args) == 0 {
		usage(false)
	}

	for _, xc := range cmds[:len(cmds)-1] {
		if len(args) > len(xc.words) {
			continue
		}
		if !strings.HasPrefix(strings.Join(xc.words, " "), strings.Join(args, " ")) {
			continue
		}
		xc.gather()
		fmt.Print(xc.makeUsage())
		if xc.help != "" {
			fmt.Print("\n" + xc.help + "\n\n")
		}
	}
}

func usage(exit bool) {
	var r strings.Builder
	r.WriteString("usage:\n")
	for _, c := range cmds {
		c.gather()
		for _, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
			if line != "" {
				line = " " + line
			}
			fmt.Fprintf(&r, "\tnginxmailhost %s%s\n", strings.Join(c.words, " "), line)
		}
	}
	fmt.Fprint(os.Stderr, r.String())
	if exit {
		os.Exit(2)
	}
	os.Exit(0)
}

func xcheckf(err error, format string, args ...any) {
	if err != nil {
		xlog.Fatalx(fmt.Sprintf(format, args...), err)
	}
}

func main() {
	flag.Usage = func() { usage(true) }
	flag.StringVar(&configPath, "config", envString("NGINXMAILHOSTCONF", "nginxmailhost.conf"), "path to the static config file; mailhosts.conf is expected in the same directory")
	flag.BoolVar(&mlog.Logfmt, "logfmt", false, "emit logfmt-style log lines")
	var loglevel string
	flag.StringVar(&loglevel, "loglevel", "", "if set, overrides the configured log level")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage(true)
	}

	if loglevel != "" {
		level, ok := mlog.Levels[loglevel]
		if !ok {
			xlog.Fatal("unknown loglevel", mlog.Field("loglevel", loglevel))
		}
		mlog.SetConfig(map[string]mlog.Level{"": level})
	}

	for _, c := range cmds {
		n := len(c.words)
		if len(args) < n || !slices.Equal(c.words, args[:n]) {
			continue
		}
		c.flag = flag.NewFlagSet("nginxmailhost "+strings.Join(c.words, " "), flag.ExitOnError)
		c.flagArgs = args[n:]
		c.log = xlog
		c.fn(&c)
		return
	}
	usage(true)
}

func cmdConfigDescribeStatic(c *cmd) {
	c.params = ">nginxmailhost.conf"
	c.help = `Prints an annotated empty static configuration for use as nginxmailhost.conf.

The example needs modifications to make it valid, e.g. setting ConfDir.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	var sc config.Static
	err := sconf.Describe(os.Stdout, &sc)
	xcheckf(err, "describing config")
}

func cmdConfigDescribeMailhosts(c *cmd) {
	c.params = ">mailhosts.conf"
	c.help = `Prints an annotated empty mailhosts configuration for use as mailhosts.conf.

The mailhosts configuration file declares the mail-proxy server blocks. Like
the static configuration, the printed example needs modifications to make it
valid, e.g. removing unfinished list items.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	var mc config.Mailhosts
	err := sconf.Describe(os.Stdout, &mc)
	xcheckf(err, "describing config")
}

func cmdVersion(c *cmd) {
	c.help = "Prints this version of nginxmailhost."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	fmt.Println(version())
}

func version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "(devel)"
	}
	return bi.Main.Version
}
