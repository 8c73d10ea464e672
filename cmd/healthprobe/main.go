package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// healthprobe is a minimal sidecar responder used by load balancers and
// uptime checks when the main server is being drained or redeployed.
func main() {
	addr := flag.String("addr", ":8081", "listen address")
	ver := flag.String("version", "dev", "version string to return")
	flag.Parse()

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"ok\",\"version\":\"%s\"}", *ver))
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("healthprobe listening on %s\n", *addr)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "pawtalk-healthprobe",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("healthprobe exit: %v\n", err)
	}
}
