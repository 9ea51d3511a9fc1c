// Command hotpatch compiles contract modules and injects code into them.
//
//	hotpatch compile counter.hp
//	hotpatch call counter.hp double 21
//	hotpatch eval counter.hp "self.counter + 1"
//	hotpatch console counter.hp
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
