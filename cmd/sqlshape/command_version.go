package main

import (
	"fmt"
	"strings"

	"github.com/shibukawa/sqlshape/driver"
)

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Stdout, "sqlshape %s\n", version)

	names := make([]string, 0)
	for _, d := range driver.Dialects() {
		names = append(names, d.DisplayName())
	}

	fmt.Fprintf(ctx.Stdout, "dialects: %s\n", strings.Join(names, ", "))

	for _, d := range driver.Dialects() {
		features := make([]string, 0)
		for _, f := range d.Features() {
			features = append(features, f.String())
		}

		fmt.Fprintf(ctx.Stdout, "  %s: %s\n", d.DisplayName(), strings.Join(features, ", "))
	}

	return nil
}
