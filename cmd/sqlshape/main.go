package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	_ "github.com/shibukawa/sqlshape/mysql"
	_ "github.com/shibukawa/sqlshape/postgres"
	_ "github.com/shibukawa/sqlshape/sqlite"
)

const version = "v0.1.0"

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Quiet   bool
	Stdout  io.Writer
	Logger  *logrus.Logger
}

// CLI represents the command-line interface
var CLI struct {
	Config   string      `help:"Configuration file path" default:"sqlshape.yaml"`
	Verbose  bool        `help:"Enable verbose output" short:"v"`
	Quiet    bool        `help:"Suppress output" short:"q"`
	Describe DescribeCmd `cmd:"" help:"Describe the parameters and result columns of a statement"`
	Check    CheckCmd    `cmd:"" help:"Describe every statement in the query files and report failures"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

func newLogger(verbose bool) *logrus.Logger {
	// dialects log through the standard logger
	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	return logger
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlshape"),
		kong.Description("Describe SQL statements against a development database"),
		kong.UsageOnError(),
	)

	appCtx := &Context{
		Config:  CLI.Config,
		Verbose: CLI.Verbose,
		Quiet:   CLI.Quiet,
		Stdout:  os.Stdout,
		Logger:  newLogger(CLI.Verbose),
	}

	err := ctx.Run(appCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
