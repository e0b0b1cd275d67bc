package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaketus/nginxmailhost/facts"
	"github.com/jaketus/nginxmailhost/fragfile"
	"github.com/jaketus/nginxmailhost/metrics"
	"github.com/jaketus/nginxmailhost/mlog"
)

var cidGen int64

func nextCid() int64 {
	return atomic.AddInt64(&cidGen, 1)
}

func cmdServe(c *cmd) {
	c.help = `Runs as a convergence agent.

Converges all mailhosts immediately, then watches mailhosts.conf and
re-converges whenever it changes. SIGHUP forces a convergence pass. If a
metrics address is configured, Prometheus metrics are served on it.
`
	ipv6 := c.flag.Bool("ipv6", facts.HasIPv6(), "treat the host as having ipv6 connectivity")
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	log := c.log
	conf := mustLoadConfig(log)

	err := fragfile.Init(context.Background(), conf.Static.DataDir)
	xcheckf(err, "opening state database")
	defer func() {
		log.Check(fragfile.Close(), "closing state database")
	}()

	if addr := conf.Static.MetricsAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Print("metrics listener", mlog.Field("addr", addr))
			err := http.ListenAndServe(addr, mux)
			log.Fatalx("metrics listener", err)
		}()
	}

	notifier := fragfile.ExecNotifier{Argv: conf.Static.ReloadCommand}
	pass := func() {
		cid := nextCid()
		ctx := context.WithValue(context.Background(), mlog.CidKey, cid)
		plog := log.WithCid(cid)
		defer func() {
			x := recover()
			if x == nil {
				return
			}
			plog.Error("unhandled panic during convergence", mlog.Field("panic", x))
			debug.PrintStack()
			metrics.PanicInc("serve")
		}()
		if failed := converge(ctx, plog, conf, *ipv6, notifier); failed > 0 {
			plog.Error("convergence failed for some mailhosts", mlog.Field("failed", failed))
		}
	}

	log.Print("starting", mlog.Field("version", version()), mlog.Field("mailhosts", len(conf.Mailhosts)), mlog.Field("interval", conf.Static.Interval.String()))
	pass()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(conf.Static.Interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigc:
			if sig == syscall.SIGHUP {
				log.Print("sighup, reloading mailhosts and converging")
				if errs := conf.ParseMailhosts(log); len(errs) > 0 {
					for _, err := range errs {
						log.Errorx("reloading mailhosts config", err)
					}
					continue
				}
				pass()
				continue
			}
			log.Print("shutting down", mlog.Field("signal", sig.String()))
			return
		case <-ticker.C:
			fi, err := os.Stat(conf.MailhostsPath)
			if err != nil {
				log.Errorx("stat mailhosts config file", err)
				continue
			}
			if fi.ModTime().Equal(conf.MailhostsMtime) {
				continue
			}
			log.Info("mailhosts config changed, reloading and converging")
			if errs := conf.ParseMailhosts(log); len(errs) > 0 {
				for _, err := range errs {
					log.Errorx("reloading mailhosts config", err)
				}
				continue
			}
			pass()
		}
	}
}
