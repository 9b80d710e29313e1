//go:build !unix

package harness

import "os"

func killSelf() { os.Exit(137) }
