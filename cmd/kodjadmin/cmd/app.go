package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kodj/kodjadmin/adminapi"
	"github.com/kodj/kodjadmin/authapi"
	"github.com/kodj/kodjadmin/config"
	"github.com/kodj/kodjadmin/internal/logging"
	"github.com/kodj/kodjadmin/internal/util"
	"github.com/kodj/kodjadmin/session"
	"github.com/kodj/kodjadmin/storage"
	bboltstorage "github.com/kodj/kodjadmin/storage/bbolt"
	memorystorage "github.com/kodj/kodjadmin/storage/memory"
	redisstorage "github.com/kodj/kodjadmin/storage/redis"
	"github.com/kodj/kodjadmin/tokenstore"
	"github.com/kodj/kodjadmin/transport"
)

// app is the wired session stack of one profile.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	repo        storage.Repository
	closeRepo   func() error
	store       *tokenstore.Sealed
	metrics     *transport.Metrics
	refresher   *authapi.Refresher
	interceptor *transport.Interceptor
	auth        *authapi.Client
	admin       *adminapi.Client
	session     *session.Controller
}

// newApp wires storage, the token store, the refresh client, the
// interceptor chain and the session controller, in that order, and
// connects the interceptor's expiry hook back to the controller.
func newApp(cfg *config.Config, logOut io.Writer, nav session.Navigator) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logging.New(cfg.LogLevel, logOut),
		registry: prometheus.NewRegistry(),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openRepository(); err != nil {
		return nil, err
	}
	wrappingKey, err := a.wrappingKey()
	if err != nil {
		return nil, err
	}
	a.store, err = tokenstore.NewSealed(a.repo, cfg.Profile, wrappingKey, tokenstore.WithLogger(a.logger))
	util.WipeBytes(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	a.metrics = transport.NewMetrics(a.registry)
	var base http.RoundTripper = http.DefaultTransport
	if cfg.BreakerEnabled {
		bc := transport.DefaultBreakerConfig("kodj-api")
		bc.MinRequests = cfg.BreakerMinRequests
		bc.FailureRatio = cfg.BreakerFailureRatio
		bc.Timeout = cfg.BreakerTimeout
		base = transport.NewBreaker(base, bc, a.logger, a.metrics)
	}
	plain := &http.Client{Transport: base, Timeout: cfg.RequestTimeout}

	a.refresher = authapi.NewRefresher(a.store, authapi.RefreshConfig{
		URL:     endpoint(cfg.APIBaseURL, cfg.RefreshPath),
		Method:  cfg.RefreshMethod,
		Shape:   cfg.TokenShape,
		Timeout: cfg.RequestTimeout,
	}, authapi.WithRefreshHTTPClient(plain), authapi.WithRefreshLogger(a.logger), authapi.WithRefreshObserver(a.metrics))

	a.interceptor = transport.New(a.store, a.refresher,
		transport.WithBase(base), transport.WithMetrics(a.metrics), transport.WithLogger(a.logger))
	authorized := a.interceptor.Client(cfg.RequestTimeout)

	a.auth = authapi.NewClient(authapi.Endpoints{
		BaseURL:       cfg.APIBaseURL,
		LoginPath:     cfg.LoginPath,
		VerifyOTPPath: cfg.VerifyOTPPath,
		RefreshPath:   cfg.RefreshPath,
		PrincipalPath: cfg.PrincipalPath,
	}, authapi.WithHTTPClient(plain), authapi.WithAuthorizedClient(authorized), authapi.WithLogger(a.logger))
	a.admin = adminapi.New(cfg.APIBaseURL, authorized, adminapi.WithLogger(a.logger))

	opts := []session.Option{session.WithLogger(a.logger)}
	if nav != nil {
		opts = append(opts, session.WithNavigator(nav))
	}
	a.session = session.New(a.store, a.auth, a.refresher, session.Config{
		RenewInterval:  cfg.RenewInterval,
		RenewSkew:      cfg.RenewSkew,
		ResendCooldown: cfg.ResendCooldown,
		DeviceType:     cfg.DeviceType,
		ClientAddress:  outboundAddress(cfg.APIBaseURL),
		Policy:         session.Policy{LocalProvider: cfg.LocalProvider, RequiredRole: cfg.RequiredRole},
	}, opts...)
	a.interceptor.SetSessionExpiredHook(a.session.ExpireSession)

	ok = true
	return a, nil
}

func (a *app) openRepository() error {
	switch a.cfg.Store {
	case config.StoreMemory:
		a.repo = memorystorage.NewRepository()
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPass,
			DB:       a.cfg.RedisDB,
		})
		store, err := redisstorage.New(redisstorage.Config{Client: client, KeyPrefix: a.cfg.RedisPrefix})
		if err != nil {
			client.Close()
			return fmt.Errorf("opening redis store: %w", err)
		}
		a.repo, a.closeRepo = store, store.Close
	default:
		if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		store, err := bboltstorage.NewRepositoryFromFile(a.cfg.BoltPath(), nil)
		if err != nil {
			return fmt.Errorf("opening token database: %w", err)
		}
		a.repo, a.closeRepo = store, store.Close
	}
	return nil
}

// wrappingKey derives the key sealing the token store: from the configured
// passphrase, from the key file, or ephemeral for the memory store.
func (a *app) wrappingKey() ([]byte, error) {
	switch {
	case a.cfg.StorePassphrase != "":
		return tokenstore.KeyFromPassphrase(a.repo, a.cfg.Profile, a.cfg.StorePassphrase, util.DefaultArgon2idParams())
	case a.cfg.Store == config.StoreMemory:
		return util.NewAESKey()
	default:
		return tokenstore.LoadOrCreateKeyFile(a.cfg.KeyFilePath())
	}
}

// Close stops renewal and releases the store. Stored credentials are kept.
func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.closeRepo != nil {
		if err := a.closeRepo(); err != nil {
			a.logger.Warn("closing token storage", "error", err)
		}
	}
}

func endpoint(base, path string) string {
	u, err := url.JoinPath(base, path)
	if err != nil {
		return base + path
	}
	return u
}

// outboundAddress is the local address used to reach the backend. It is
// reported with the password step; no packet is sent to find it.
func outboundAddress(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	conn, err := net.Dial("udp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
