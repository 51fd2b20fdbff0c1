// Goref harness runs the in-process reference operators behind the line
// protocol so the process adapter can be benchmarked against the
// in-process engines. Requests arrive on stdin; drain replies go to stdout.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/weiihann/flowbench/engine"
	"github.com/weiihann/flowbench/harness"
)

func main() {
	operator := flag.String("operator", "identity", "operator to run")
	flag.Parse()

	spec, err := engine.ParseOperator(*operator)
	if err != nil {
		fatal("%v", err)
	}

	if err := harness.Serve(os.Stdin, os.Stdout, spec.New()); err != nil {
		fatal("serve: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "goref-harness: "+format+"\n", args...)
	os.Exit(1)
}
