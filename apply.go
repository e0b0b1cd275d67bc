package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/facts"
	"github.com/jaketus/nginxmailhost/fragfile"
	"github.com/jaketus/nginxmailhost/mailhost"
	"github.com/jaketus/nginxmailhost/metrics"
	"github.com/jaketus/nginxmailhost/mlog"
	"github.com/jaketus/nginxmailhost/tmpl"
)

func mustLoadConfig(log *mlog.Log) *config.Config {
	conf, errs := config.ParseConfig(log, configPath)
	if len(errs) > 1 {
		log.Error("multiple configuration errors")
		for _, err := range errs {
			log.Errorx("config error", err)
		}
		os.Exit(1)
	} else if len(errs) == 1 {
		log.Fatalx("loading configuration", errs[0])
	}
	return conf
}

// renderFragments plans and renders the fragments of one validated mailhost.
func renderFragments(spec mailhost.Spec) ([]fragfile.Fragment, error) {
	var frags []fragfile.Fragment
	for _, f := range spec.Plan() {
		text, err := tmpl.Render(f.TemplateID, f.Data)
		if err != nil {
			return nil, fmt.Errorf("mailhost %s: %v", spec.Name, err)
		}
		frags = append(frags, fragfile.Fragment{OrderKey: f.OrderKey, Text: text})
	}
	return frags, nil
}

// converge brings all declared mailhosts in line with their rendered form:
// validate, plan, render, write, and reload nginx once if any file changed.
// A failing mailhost does not stop its siblings; the number of failed
// mailhosts is returned.
func converge(ctx context.Context, log *mlog.Log, conf *config.Config, hostHasIPv6 bool, notifier fragfile.Notifier) (failed int) {
	start := time.Now()
	defer metrics.ConvergeDurationObserve(start)

	confMailDir := filepath.Join(conf.Static.ConfDir, "conf.mail.d")
	if err := os.MkdirAll(confMailDir, 0755); err != nil {
		log.Errorx("creating conf.mail.d directory", err, mlog.Field("dir", confMailDir))
		return len(conf.Mailhosts)
	}

	names := make([]string, 0, len(conf.Mailhosts))
	for name := range conf.Mailhosts {
		names = append(names, name)
	}
	slices.Sort(names)

	changedAny := false
	for _, name := range names {
		m := conf.Mailhosts[name]

		spec, errs := mailhost.Validate(log, name, m, hostHasIPv6)
		if len(errs) > 0 {
			for _, err := range errs {
				log.Errorx("invalid mailhost, not converging it", err)
			}
			metrics.ConvergeObserve("invalid")
			failed++
			continue
		}

		frags, err := renderFragments(spec)
		if err != nil {
			log.Errorx("rendering mailhost", err)
			metrics.ConvergeObserve("error")
			failed++
			continue
		}

		path := filepath.Join(confMailDir, name+".conf")
		changed, err := fragfile.Write(ctx, log, path, m.Ensure, conf.Static.Owner, conf.Static.Group, conf.Static.Mode, frags)
		if err != nil {
			log.Errorx("writing mailhost file", err, mlog.Field("path", path))
			metrics.ConvergeObserve("error")
			failed++
			continue
		}
		changedAny = changedAny || changed
		metrics.ConvergeObserve("ok")
	}

	if changedAny && notifier != nil {
		if err := notifier.Reload(ctx); err != nil {
			log.Errorx("reloading nginx", err)
			failed++
		} else {
			log.Info("nginx reloaded")
		}
	}
	return failed
}

func cmdApply(c *cmd) {
	c.help = `Converges all declared mailhosts once.

Each mailhost is validated, rendered and written to
{ConfDir}/conf.mail.d/{name}.conf. Unchanged files are left alone. Nginx is
reloaded once if any file changed. An invalid mailhost is skipped with errors
logged, without affecting other mailhosts; the exit code is non-zero if any
mailhost failed.
`
	noreload := c.flag.Bool("noreload", false, "do not reload nginx, only write files")
	ipv6 := c.flag.Bool("ipv6", facts.HasIPv6(), "treat the host as having ipv6 connectivity")
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	conf := mustLoadConfig(c.log)
	ctx := context.Background()
	err := fragfile.Init(ctx, conf.Static.DataDir)
	xcheckf(err, "opening state database")
	defer func() {
		c.log.Check(fragfile.Close(), "closing state database")
	}()

	var notifier fragfile.Notifier
	if !*noreload {
		notifier = fragfile.ExecNotifier{Argv: conf.Static.ReloadCommand}
	}
	if failed := converge(ctx, c.log, conf, *ipv6, notifier); failed > 0 {
		c.log.Error("convergence failed for some mailhosts", mlog.Field("failed", failed))
		os.Exit(1)
	}
}

func cmdCheck(c *cmd) {
	c.help = `Parses and validates the configuration files.

If valid, the command exits with status 0. If not valid, all errors
encountered are printed.
`
	ipv6 := c.flag.Bool("ipv6", facts.HasIPv6(), "treat the host as having ipv6 connectivity")
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	conf, errs := config.ParseConfig(c.log, configPath)
	if len(errs) == 0 {
		for name, m := range conf.Mailhosts {
			if _, verrs := mailhost.Validate(c.log, name, m, *ipv6); len(verrs) > 0 {
				errs = append(errs, verrs...)
			}
		}
	}
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	fmt.Println("config OK")
}

func cmdPrint(c *cmd) {
	c.params = "name"
	c.help = `Renders the configuration file for one mailhost to stdout.

Nothing is written to disk and nginx is not reloaded.
`
	ipv6 := c.flag.Bool("ipv6", facts.HasIPv6(), "treat the host as having ipv6 connectivity")
	listenip := c.flag.String("listenip", "", "if set, overrides the declared listen addresses with this single address")
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	conf := mustLoadConfig(c.log)
	m, ok := conf.Mailhosts[args[0]]
	if !ok {
		c.log.Fatal("no such mailhost", mlog.Field("name", args[0]))
	}
	if *listenip != "" {
		m.ListenIP = mailhost.AsStrings(*listenip)
	}

	spec, errs := mailhost.Validate(c.log, args[0], m, *ipv6)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	frags, err := renderFragments(spec)
	xcheckf(err, "rendering")
	os.Stdout.Write(fragfile.Concat(frags))
}

func cmdStateList(c *cmd) {
	c.help = `Lists the managed files tracked in the state database.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	conf := mustLoadConfig(c.log)
	ctx := context.Background()
	err := fragfile.Init(ctx, conf.Static.DataDir)
	xcheckf(err, "opening state database")
	defer func() {
		c.log.Check(fragfile.Close(), "closing state database")
	}()

	records, err := fragfile.Records(ctx)
	xcheckf(err, "listing state records")
	for _, r := range records {
		fmt.Printf("%s\t%d\t%s\t%s\n", r.Path, r.Size, r.Modified.Format(time.RFC3339), hex.EncodeToString(r.SHA256))
	}
}
