package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"eagertimer/internal/app"
	"eagertimer/internal/config"
	"eagertimer/internal/scheduler"
	"eagertimer/internal/storage"
	logx "eagertimer/pkg/logx"
)

const (
	defaultConfigPath = "./config.json"
	stopTimeout       = 10 * time.Second
)

var (
	configPath   string
	historyName  string
	historyLimit int

	configFlag = cli.StringFlag{
		Name:        "config, c",
		Value:       defaultConfigPath,
		Usage:       "path to the JSON or YAML config file",
		Destination: &configPath,
	}

	historyFlags = []cli.Flag{
		configFlag,
		cli.StringFlag{
			Name:        "name, n",
			Usage:       "only show fires of this event",
			Destination: &historyName,
		},
		cli.IntFlag{
			Name:        "limit, l",
			Value:       20,
			Usage:       "number of records to show (0 = all)",
			Destination: &historyLimit,
		},
	}
)

func newApp(out io.Writer) *cli.App {
	a := cli.NewApp()
	a.Name = "eagertimer"
	a.HelpName = "eagertimer"
	a.Usage = "adaptive in-process event scheduler"
	a.UsageText = "eagertimer <command> [arguments...]"
	a.Version = version
	a.Writer = out
	a.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler with the events declared in the config",
			Flags:  []cli.Flag{configFlag},
			Action: run,
		},
		{
			Name:   "check",
			Usage:  "parse and validate a config file",
			Flags:  []cli.Flag{configFlag},
			Action: check,
		},
		{
			Name:      "convert",
			Usage:     "convert a value between time units",
			ArgsUsage: "VALUE FROM TO",
			Action:    convert,
		},
		{
			Name:   "history",
			Usage:  "show recorded fires",
			Flags:  historyFlags,
			Action: history,
		},
	}
	return a
}

func Execute(args []string) error {
	return newApp(os.Stdout).Run(args)
}

func run(c *cli.Context) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	notifyReady()
	go watchdog(ctx)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	notifyStopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return a.Err()
}

func check(c *cli.Context) error {
	m := config.NewConfigManager(configPath)
	m.SetValidator(config.Validator)
	cfg, err := m.Load()
	if err != nil {
		return err
	}
	sc, _ := cfg.Scheduler.ToScheduler()
	out := c.App.Writer
	fmt.Fprintf(out, "%s: ok\n", configPath)
	fmt.Fprintf(out, "scheduler: minimum_interval=%s heartbeat=%v %s auto_start=%t\n",
		sc.MinimumInterval, sc.BaseInterval, sc.TimeUnit, sc.AutoStart)

	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSCHEDULE\tTIMES")
	for i, ec := range cfg.Events {
		p, err := ec.Resolve(fmt.Sprintf("events[%d]", i), now)
		if err != nil {
			return err
		}
		kind, sched := "repeat", p.Schedule.Cron
		switch {
		case p.OneShot():
			kind, sched = "once", p.At.Format(time.RFC3339)
		case p.Schedule.Kind == scheduler.SpecInterval:
			sched = "every " + p.Schedule.Every.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Name, kind, sched, p.Times)
	}
	return tw.Flush()
}

func convert(c *cli.Context) error {
	if c.NArg() != 3 {
		_ = cli.ShowCommandHelp(c, c.Command.Name)
		return errors.New("convert: expected VALUE FROM TO")
	}
	v, err := strconv.ParseFloat(c.Args().Get(0), 64)
	if err != nil {
		return fmt.Errorf("convert: invalid value %q", c.Args().Get(0))
	}
	from, err := scheduler.ParseUnit(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	to, err := scheduler.ParseUnit(c.Args().Get(2))
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s %s\n", strconv.FormatFloat(scheduler.Convert(v, from, to), 'g', -1, 64), to)
	return nil
}

func history(c *cli.Context) error {
	cfg, err := config.NewConfigManager(configPath).Parse()
	if err != nil {
		return err
	}
	sc, err := cfg.Storage.ToStorage()
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	if st == nil {
		return storage.ErrDisabled
	}
	defer st.Close()

	recs, err := st.RecentFires(context.Background(), historyName, historyLimit)
	if err != nil {
		return err
	}
	out := c.App.Writer
	if len(recs) == 0 {
		fmt.Fprintln(out, "no fires recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tNAME\tKIND\tFIRES\tLATE\tNEXT\tERROR")
	for _, r := range recs {
		late, next := "-", "-"
		if !r.PlannedAt.IsZero() {
			late = r.At.Sub(r.PlannedAt).String()
		}
		if !r.Next.IsZero() {
			next = r.Next.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.At.Format(time.RFC3339Nano), r.Name, r.Kind, r.TimesFired, late, next, r.Error)
	}
	return tw.Flush()
}
