package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"
)

// StartServer serves /metrics plus any extra operational routes (health
// probes) on the given port. The returned function shuts the server down.
func StartServer(port int, routes map[string]http.Handler) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	patterns := []string{"/metrics"}
	for pattern, h := range routes {
		mux.Handle(pattern, h)
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	index := indexPage(patterns)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, index)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

func indexPage(patterns []string) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>searchcore indexd</h1><ul>")
	for _, p := range patterns {
		if strings.ContainsAny(p, " {") {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(p))
			continue
		}
		p = html.EscapeString(p)
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, p, p)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}
