package main

import (
	"fmt"

	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/driver"
	"github.com/shibukawa/sqlshape/formatter"
	"github.com/shibukawa/sqlshape/queryfile"
)

// DescribeCmd represents the describe command
type DescribeCmd struct {
	Query    string `arg:"" optional:"" help:"Statement to describe"`
	File     string `short:"f" help:"Describe the statements of a .sql or .md file" type:"existingfile"`
	Database string `short:"d" help:"Configured database name"`
	URL      string `help:"Database URL, overrides --database" env:"DATABASE_URL"`
	Format   string `short:"o" help:"Output format" default:"table" enum:"table,json,yaml,csv,markdown"`
}

// Run executes the describe command
func (cmd *DescribeCmd) Run(ctx *Context) error {
	config, err := sqlshape.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	statements, err := cmd.statements()
	if err != nil {
		return err
	}

	var results []formatter.Result

	for _, s := range statements {
		url, err := resolveDatabaseURL(config, firstNonEmpty(s.Database, cmd.Database), cmd.URL)
		if err != nil {
			return err
		}

		ctx.Logger.WithField("url", sqlshape.RedactURL(url)).Debugf("describing %s", s.Name)

		desc, err := driver.DescribeBlocking(s.SQL, url, &config.Drivers)
		if err != nil {
			return fmt.Errorf("failed to describe %s: %w", location(s, err), err)
		}

		results = append(results, formatter.Result{
			Name:        s.Name,
			Location:    locationOf(s),
			Query:       s.SQL,
			Description: desc,
		})
	}

	return formatter.NewFormatter(formatter.OutputFormat(cmd.Format)).Format(results, ctx.Stdout)
}

func (cmd *DescribeCmd) statements() ([]queryfile.Statement, error) {
	if cmd.File != "" {
		statements, err := queryfile.Load(cmd.File)
		if err != nil {
			return nil, err
		}

		if len(statements) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoStatements, cmd.File)
		}

		return statements, nil
	}

	if cmd.Query == "" {
		return nil, ErrNoQuery
	}

	return []queryfile.Statement{{Name: "statement", Line: 1, SQL: cmd.Query}}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// locationOf is empty for statements given on the command line
func locationOf(s queryfile.Statement) string {
	if s.File == "" {
		return ""
	}

	return s.Location()
}
