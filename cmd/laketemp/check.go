package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/fixtures"
	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/ingest"
	"github.com/lox/laketemp/internal/models"
)

const (
	exampleGKDURL    = "https://www.gkd.bayern.de/de/seen/wassertemperatur/inn/seethal-18673955/messwerte"
	exampleHydroHint = "Irrsee"
	exampleOGDLake   = "Mattsee"
)

type CheckCmd struct {
	Online bool `name:"online" env:"RUN_ONLINE" help:"Also fetch live data from every portal."`
}

type checkResult struct {
	provider string
	mode     string
	record   models.Record
	err      error
}

func (c *CheckCmd) Run(g *Globals) error {
	results := offlineChecks()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}

	if c.Online {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		results = append(results, onlineChecks(ctx, g.Logger)...)
	}

	tw := tabwriter.NewWriter(g.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODE\tTIMESTAMP\tVALUE\tERROR")
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t%v\n", r.provider, r.mode, r.err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.provider, r.mode,
			r.record.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(r.record.TemperatureC, 'f', 1, 64))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d offline checks failed", failed)
	}
	return nil
}

func offlineChecks() []checkResult {
	var out []checkResult

	gkd := checkResult{provider: string(models.SourceGKDBayern), mode: "offline"}
	if records, err := ingest.ParseGKDTable(fixtures.GKDBayernHTML(), ""); err != nil {
		gkd.err = err
	} else {
		gkd.record = records[len(records)-1]
	}
	out = append(out, gkd)

	hydro := checkResult{provider: string(models.SourceHydroOOE), mode: "offline"}
	blocks := ingest.SplitZRXPBlocks(fixtures.HydroOOEZRXP())
	if records, _, err := ingest.SelectAndParse(blocks, "5005", "", ingest.DefaultNameScoring); err != nil {
		hydro.err = err
	} else {
		hydro.record = records[len(records)-1]
	}
	out = append(out, hydro)

	ogd := checkResult{provider: string(models.SourceSalzburgOGD), mode: "offline"}
	if records, err := ingest.ParseOGD(fixtures.SalzburgOGD()); err != nil {
		ogd.err = err
	} else if latest := ingest.LatestByLake(records, []string{exampleOGDLake}); len(latest) == 0 {
		ogd.err = fmt.Errorf("no %s rows in sample", exampleOGDLake)
	} else {
		for _, rec := range latest {
			ogd.record = rec.Record()
		}
	}
	out = append(out, ogd)

	return out
}

func onlineChecks(ctx context.Context, logger zerolog.Logger) []checkResult {
	reg := dataset.NewRegistry(dataset.RegistryOptions{Logger: logger})
	defer reg.Close()
	sess := reg.SharedSession(httputil.DefaultUserAgent)

	gkd := checkResult{provider: string(models.SourceGKDBayern), mode: "online"}
	gkd.record, gkd.err = ingest.NewGKDScraper(sess, exampleGKDURL, "", logger).FetchLatest(ctx)

	hydro := checkResult{provider: string(models.SourceHydroOOE), mode: "online"}
	hydro.record, _, hydro.err = ingest.NewHydroOOEScraper(sess, "", logger).FetchLatest(ctx, "", exampleHydroHint)

	ogd := checkResult{provider: string(models.SourceSalzburgOGD), mode: "online"}
	if rec, err := ingest.NewSalzburgOGDScraper(sess, "", logger).FetchLatestForLake(ctx, exampleOGDLake); err != nil {
		ogd.err = err
	} else {
		ogd.record = rec.Record()
	}

	return []checkResult{gkd, hydro, ogd}
}
