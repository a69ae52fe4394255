// optrackd is a demo daemon exercising optrack: it registers a churn of
// synthetic in-flight operations against an OpTracker, runs a periodic
// slow-op check, and serves the result over an optadmin.Server admin
// listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/oklog/ulid/v2"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"github.com/sirupsen/logrus"

	"github.com/justincmoy/optrack"
	"github.com/justincmoy/optrack/optadmin"
)

func main() {
	err := exec(context.Background(), os.Args[1:])
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	listenAddr    string
	numShards     int
	numWorkers    int
	complaintTime time.Duration
	checkInterval time.Duration
	logLevel      string
}

func exec(ctx context.Context, args []string) error {
	cfg := &config{}

	fs := ff.NewFlagSet("optrackd")
	fs.AddFlag(ff.FlagConfig{
		LongName:    "listen-addr",
		Value:       ffval.NewValueDefault(&cfg.listenAddr, "localhost:8002"),
		Usage:       "admin HTTP listen address (unix:// URIs are also accepted)",
		Placeholder: "ADDR",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "num-shards",
		Value:    ffval.NewValueDefault(&cfg.numShards, 16),
		Usage:    "number of in-flight registry shards",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "num-workers",
		Value:    ffval.NewValueDefault(&cfg.numWorkers, 8),
		Usage:    "number of demo op goroutines",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "complaint-time",
		Value:    ffval.NewValueDefault(&cfg.complaintTime, 5*time.Second),
		Usage:    "age at which an in-flight op is considered slow",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "check-interval",
		Value:    ffval.NewValueDefault(&cfg.checkInterval, 2*time.Second),
		Usage:    "interval between slow-op checks",
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log-level",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "debug", "warn"),
		Usage:       "log level: info, debug, warn",
		Placeholder: "LEVEL",
	})

	cmd := &ff.Command{
		Name:  "optrackd",
		Flags: fs,
	}

	if err := cmd.Parse(args, ff.WithEnvVarPrefix("OPTRACKD")); err != nil {
		fmt.Fprintf(os.Stderr, "\n%s\n", ffhelp.Command(cmd))
		return err
	}

	switch cfg.logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	trackerCfg := optrack.DefaultConfig(cfg.numShards)
	trackerCfg.ComplaintTime.Store(int64(cfg.complaintTime))
	clock := optrack.SystemClock{}
	tracker := optrack.NewOpTracker(trackerCfg, clock)

	admin := optadmin.NewServer(tracker)

	ln, err := unixproxy.ListenURI(ctx, cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	httpServer := &http.Server{Handler: admin}

	var g run.Group

	g.Add(func() error {
		logrus.Infof("optrackd: admin listening on %s", cfg.listenAddr)
		return httpServer.Serve(ln)
	}, func(error) {
		httpServer.Close()
	})

	for i := 0; i < cfg.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		worker := i
		g.Add(func() error {
			return runWorker(workerCtx, tracker, worker)
		}, func(error) {
			cancel()
		})
	}

	{
		checkCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(cfg.checkInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					summary, warnings, numSlow, ok := tracker.CheckOpsInFlight()
					if ok && numSlow > 0 {
						logrus.Info(summary)
						for _, w := range warnings {
							logrus.Warn(w)
						}
					}
				case <-checkCtx.Done():
					return nil
				}
			}
		}, func(error) {
			cancel()
		})
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, os.Kill))

	return g.Run()
}

// runWorker repeatedly registers a synthetic demoOp, holds it in flight for
// a random duration, and unregisters it, giving the tracker something to
// track.
func runWorker(ctx context.Context, tracker *optrack.OpTracker, id int) error {
	rnd := rand.New(rand.NewSource(int64(id) + 1))
	entropy := ulid.Monotonic(rnd, 0)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		op := &demoOp{
			id:     ulid.MustNew(ulid.Now(), entropy).String(),
			worker: id,
		}

		tracked := optrack.NewTrackedOp(op)
		tracker.RegisterInflight(tracked)

		work := time.Duration(rnd.Intn(4000)) * time.Millisecond
		select {
		case <-time.After(work):
		case <-ctx.Done():
			tracker.UnregisterInflight(tracked)
			return nil
		}

		tracker.UnregisterInflight(tracked)
	}
}

// demoOp is a minimal optrack.Op: a synthetic request identified by a ULID
// and the worker goroutine that issued it.
type demoOp struct {
	id     string
	worker int
}

func (o *demoOp) Describe() string { return fmt.Sprintf("demo-op %s (worker %d)", o.id, o.worker) }

func (o *demoOp) DumpTypeData(e optrack.Emitter) {
	e.DumpString("op_id", o.id)
	e.DumpInt("worker", int64(o.worker))
}

func (o *demoOp) FilterMatch(filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == o.id {
			return true
		}
	}
	return false
}

func (o *demoOp) OnEvent(label string) {}

func (o *demoOp) OnUnregistered() {}
