package main

import "errors"

// Sentinel errors for command operations
var (
	ErrNoDatabaseSelected = errors.New("no database selected: pass --database or --url, or configure exactly one database")
	ErrNoQuery            = errors.New("no statement given: pass it as an argument or with --file")
	ErrNoStatements       = errors.New("no statements found")
	ErrCheckFailed        = errors.New("some statements could not be described")
)
