package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/whogotwho/game"
	"github.com/Seednode/whogotwho/store"
	"github.com/Seednode/whogotwho/uploads"
)

const (
	logDate       string        = `2006-01-02T15:04:05.000-07:00`
	timeout       time.Duration = 10 * time.Second
	disputeSweep  time.Duration = 5 * time.Second
	minPruneEvery time.Duration = time.Minute
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("whogotwho v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// openStore picks the game store from --db. The returned close func is
// never nil.
func openStore(ctx context.Context, cfg *Config) (game.Store, func() error, error) {
	if cfg.db == "" {
		logf(cfg, "STORE: Keeping games in memory")
		return store.NewMemory(), func() error { return nil }, nil
	}

	db, err := store.OpenSQLite(ctx, cfg.db)
	if err != nil {
		return nil, nil, err
	}
	logf(cfg, "STORE: Keeping games in %s", cfg.db)
	return db, db.Close, nil
}

func openProofs(cfg *Config) (*uploads.Store, error) {
	urlPrefix := cfg.prefix + proofPath
	if cfg.proofDir == "" {
		logf(cfg, "STORE: Keeping challenge photos in memory")
		return uploads.New(afero.NewMemMapFs(), urlPrefix, cfg.proofMaxSize), nil
	}

	logf(cfg, "STORE: Keeping challenge photos in %s", cfg.proofDir)
	return uploads.NewDisk(cfg.proofDir, urlPrefix, cfg.proofMaxSize)
}

func newRouter(cfg *Config, games *game.Manager, hubs *HubManager, proofs *uploads.Store, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logf(cfg, "ERROR: Panic serving %s: %v", r.URL.Path, i)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))

	mux.GET(cfg.prefix+"/assets/*file", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.svg", serveFavicon(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.GET(cfg.prefix+proofPath+"/*file", serveProof(cfg, proofs, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerGameRoutes(cfg, games, hubs, mux)

	return mux
}

// sweepDisputes settles disputes whose voting window has closed.
func sweepDisputes(ctx context.Context, cfg *Config, games *game.Manager) error {
	ticker := time.NewTicker(disputeSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed, err := games.ExpireDisputes(ctx)
			if err != nil && ctx.Err() == nil {
				logf(cfg, "ERROR: Settling disputes: %v", err)
			}
			if changed > 0 {
				logf(cfg, "GAMES: Settled overdue disputes in %d game(s)", changed)
			}
		}
	}
}

// pruneEnded removes finished games, and their photos, once they have been
// over for longer than the session timeout.
func pruneEnded(ctx context.Context, cfg *Config, games *game.Manager, proofs *uploads.Store) error {
	if cfg.sessionTimeout <= 0 {
		return nil
	}

	every := max(cfg.sessionTimeout/2, minPruneEvery)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := games.PruneEnded(ctx, time.Now().Add(-cfg.sessionTimeout))
			if err != nil && ctx.Err() == nil {
				logf(cfg, "ERROR: Pruning ended games: %v", err)
			}
			for _, id := range removed {
				if err := proofs.RemoveGame(id); err != nil {
					logf(cfg, "ERROR: Removing photos for %s: %v", id, err)
				}
			}
			if len(removed) > 0 {
				logf(cfg, "GAMES: Removed %d ended game(s)", len(removed))
			}
		}
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: whogotwho v%s", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	gameStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logf(cfg, "ERROR: Closing store: %v", err)
		}
	}()

	proofs, err := openProofs(cfg)
	if err != nil {
		return err
	}

	rules := game.NewRules(cfg.gameDefaults(), game.DefaultCatalog())
	games := game.NewManager(gameStore, rules, proofs)
	hubs := newHubManager(games, cfg.sessionTimeout)

	errs := make(chan error, 64)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, games, hubs, proofs, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return hubs.reap(gctx)
	})

	g.Go(func() error {
		return sweepDisputes(gctx, cfg, games)
	})

	g.Go(func() error {
		return pruneEnded(gctx, cfg, games, proofs)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errs:
				logf(cfg, "ERROR: %v", err)
			}
		}
	})

	return g.Wait()
}
