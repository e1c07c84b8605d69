package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/driver"
	"github.com/shibukawa/sqlshape/formatter"
	"github.com/shibukawa/sqlshape/queryfile"
	"golang.org/x/sync/errgroup"
)

// CheckCmd represents the check command
type CheckCmd struct {
	Input    string `short:"i" help:"Query directory, defaults to queries.input_dir" type:"path"`
	Database string `short:"d" help:"Database for statements that do not choose one"`
	URL      string `help:"Database URL for every statement, overrides --database" env:"DATABASE_URL"`
	Parallel int    `help:"Statements described concurrently, defaults to check.parallel or the CPU count"`
	Format   string `short:"o" help:"Also print the descriptions in this format" default:"none" enum:"none,table,json,yaml,csv,markdown"`
}

// Run executes the check command
func (cmd *CheckCmd) Run(ctx *Context) error {
	config, err := sqlshape.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir := firstNonEmpty(cmd.Input, config.Queries.InputDir)

	statements, err := queryfile.LoadDir(dir, config.Queries.Extensions)
	if err != nil {
		return err
	}

	if len(statements) == 0 {
		return fmt.Errorf("%w in %s", ErrNoStatements, dir)
	}

	parallel := cmd.Parallel
	if parallel <= 0 {
		parallel = config.Check.Parallel
	}

	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	if ctx.Verbose {
		color.Blue("Checking %d statements from %s (%d parallel)", len(statements), dir, parallel)
	}

	results := checkStatements(statements, func(s queryfile.Statement) (string, error) {
		return resolveDatabaseURL(config, firstNonEmpty(s.Database, cmd.Database), cmd.URL)
	}, &config.Drivers, parallel)

	failed := report(ctx, results)

	if cmd.Format != "none" {
		if err := formatter.NewFormatter(formatter.OutputFormat(cmd.Format)).Format(results, ctx.Stdout); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrCheckFailed, failed, len(results))
	}

	return nil
}

// checkStatements describes statements concurrently. Results keep the input order.
func checkStatements(statements []queryfile.Statement, resolve func(queryfile.Statement) (string, error), settings *sqlshape.DriverSettings, parallel int) []formatter.Result {
	results := make([]formatter.Result, len(statements))

	var g errgroup.Group

	g.SetLimit(parallel)

	for i, s := range statements {
		g.Go(func() error {
			results[i] = formatter.Result{
				Name:     s.Name,
				Location: s.Location(),
				Query:    s.SQL,
			}

			url, err := resolve(s)
			if err == nil {
				results[i].Description, err = driver.DescribeBlocking(s.SQL, url, settings)
			}

			if err != nil {
				results[i].Location = location(s, err)
				results[i].Error = err.Error()
			}

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// location points at the reported syntax position when the database gave one
func location(s queryfile.Statement, err error) string {
	var derr *sqlshape.DescribeError
	if s.File != "" && errors.As(err, &derr) && derr.Position > 0 {
		return s.Position(derr.Position)
	}

	if s.File == "" {
		return s.Name
	}

	return s.Location()
}

// report prints one line per failure, and per success in verbose mode. It returns the failure count.
func report(ctx *Context, results []formatter.Result) int {
	failed := 0

	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	for _, r := range results {
		switch {
		case r.Failed():
			failed++

			if !ctx.Quiet {
				red.Fprintf(ctx.Stdout, "✗ %s %s: %s\n", r.Location, r.Name, r.Error)
			}
		case ctx.Verbose:
			green.Fprintf(ctx.Stdout, "✓ %s %s\n", r.Location, r.Name)
		}
	}

	if ctx.Verbose {
		for _, dialect := range driver.Dialects() {
			entry, _ := driver.Lookup(dialect)
			if cache := entry.Cache(); cache != nil {
				stats := cache.Stats()
				fmt.Fprintf(ctx.Stdout, "%s: %d exchanges, %d shared, %d cached, %d failed\n",
					dialect.DisplayName(), stats.Exchanges, stats.Shared, stats.Hits, stats.Failures)
			}
		}
	}

	if !ctx.Quiet {
		summary := green
		if failed > 0 {
			summary = red
		}

		summary.Fprintf(ctx.Stdout, "%d statements, %d failed\n", len(results), failed)
	}

	return failed
}
