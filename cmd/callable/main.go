package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meenmo/amc/cmd/callable/internal/exposure"
	"github.com/meenmo/amc/cmd/callable/internal/price"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "price":
		return price.Run(args[1:], stdin, stdout, stderr)
	case "exposure":
		return exposure.Run(args[1:], stdin, stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: callable <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  price     Callable/putable bond NPV (Monte Carlo or grid)")
	fmt.Fprintln(w, "  exposure  Exposure profile from a trained calculator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run `callable <command> -h` for command-specific help.")
}
