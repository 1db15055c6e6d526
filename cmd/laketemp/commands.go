package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lox/laketemp/internal/api"
	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
)

type ServeCmd struct {
	Listen string `default:":8080" env:"LAKETEMP_LISTEN" help:"HTTP listen address."`
	NoPoll bool   `name:"no-poll" help:"Serve without polling upstream portals."`
}

func (c *ServeCmd) Run(g *Globals) error {
	lakes, err := loadLakes(g.ConfigPath, g.Logger)
	if err != nil {
		return err
	}
	a, err := newApp(lakes, dataset.RegistryOptions{}, g.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoPoll {
		a.scheduler.Start(ctx)
		defer a.scheduler.Stop()
	} else {
		g.Logger.Info().Msg("polling disabled (--no-poll)")
	}

	server := api.NewServer(c.Listen, a.sensors, a.registry.Coordinators(), g.Logger)
	return server.Run(ctx)
}

type FetchCmd struct {
	Timeout time.Duration `default:"2m" help:"Give up after this long."`
}

func (c *FetchCmd) Run(g *Globals) error {
	lakes, err := loadLakes(g.ConfigPath, g.Logger)
	if err != nil {
		return err
	}
	a, err := newApp(lakes, dataset.RegistryOptions{}, g.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	a.scheduler.RunOnce(ctx)

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSOURCE\tVALUE\tTIMESTAMP\tERROR")
	available := 0
	for _, sn := range a.sensors {
		st := sn.State()
		value := "-"
		if st.Value != nil {
			value = strconv.FormatFloat(*st.Value, 'f', 1, 64)
			available++
		}
		errText := ""
		if err := sn.Err(); err != nil {
			errText = err.Error()
		}
		ts := st.Attributes["data_timestamp"]
		if ts == "" {
			ts = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.EntityID, st.Attributes["source_type"], value, ts, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if available == 0 {
		return fmt.Errorf("no lake produced a value")
	}
	return nil
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(g *Globals) error {
	res, err := config.Load(g.ConfigPath)
	if err != nil {
		return err
	}
	for _, lake := range res.Lakes {
		fmt.Fprintf(g.Stdout, "ok      %s (%s, every %ds)\n", lake.EntityID, lake.Source.Type, lake.ScanInterval)
	}
	for _, le := range res.Errors {
		fmt.Fprintf(g.Stdout, "invalid %s\n", le.Error())
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d of %d lakes invalid", len(res.Errors), len(res.Errors)+len(res.Lakes))
	}
	return nil
}
