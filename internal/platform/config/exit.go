package config

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// osExit is replaced in tests.
var osExit = os.Exit

// Exitf reports a startup failure on stderr and exits with status 1.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, 1, format, args...)
}

func exitf(w io.Writer, code int, format string, args ...any) {
	fmt.Fprintf(w, strings.TrimRight(format, "\n")+"\n", args...)
	osExit(code)
}
