package main

import (
	"github.com/fatih/color"

	lispcerrors "github.com/lispc/lispc/pkg/errors"
)

// Pretty-printing helpers for the CLI's [INFO]/[SUCCESS]/
// [WARNING]/[ERROR] colorized console output convention.
var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printInfo(msg string) {
	infoColor.Printf("[INFO] %s\n", msg)
}

func printSuccess(msg string) {
	successColor.Printf("[SUCCESS] %s\n", msg)
}

func printWarning(msg string) {
	warningColor.Printf("[WARNING] %s\n", msg)
}

func printError(err error) {
	errorColor.Print(lispcerrors.FormatError(err))
}
