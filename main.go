package main

import (
	_ "expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/byxorna/stageboard/cmd"
)

func init() {
	// STAGEBOARD_PPROF=localhost:6060 exposes pprof and expvar
	if addr := os.Getenv("STAGEBOARD_PPROF"); addr != "" {
		fmt.Fprintf(os.Stderr, "Listening for pprof on %s\n", addr)
		go http.ListenAndServe(addr, nil)
	}
}

func main() {
	cmd.Execute()
}
