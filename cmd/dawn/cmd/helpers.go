package cmd

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dawnbot/dawn/internal/config"
	"github.com/dawnbot/dawn/internal/proxy"
	"github.com/dawnbot/dawn/internal/roblox"
	"github.com/dawnbot/dawn/pkg/logger"
)

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func newCLILogger(cfg *config.Config) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level: parseLogLevel(cfg.Logging.Level),
	})
}

func newServiceLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format)
}

// resolveProxy picks the outbound proxy endpoint, if any. With a proxy
// file, one entry is chosen at random per process.
func resolveProxy(cfg *config.Config) (*url.URL, error) {
	switch {
	case cfg.Roblox.ProxyURL != "":
		return proxy.Parse(cfg.Roblox.ProxyURL)
	case cfg.Roblox.ProxyFile != "":
		proxies, err := proxy.LoadFile(cfg.Roblox.ProxyFile)
		if err != nil {
			return nil, err
		}
		if len(proxies) == 0 {
			return nil, fmt.Errorf("proxy file %s has no entries", cfg.Roblox.ProxyFile)
		}
		return proxies[rand.IntN(len(proxies))], nil
	default:
		return nil, nil
	}
}

// newAccount wires the request engine and account facade from config.
func newAccount(cfg *config.Config, slogger *slog.Logger) (*roblox.Account, error) {
	proxyURL, err := resolveProxy(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving proxy: %w", err)
	}

	creds := roblox.NewCredential(cfg.Roblox.Cookie, proxyURL)
	limiter := roblox.NewRateLimiter(
		cfg.Roblox.RateLimit.PerSecond,
		cfg.Roblox.RateLimit.Burst,
		cfg.Roblox.RateLimit.PerMinute,
	)

	engine := roblox.NewEngine(creds, roblox.NewSession(),
		roblox.WithLogger(slogger),
		roblox.WithRateLimiter(limiter),
		roblox.WithLogoutURL(cfg.Roblox.LogoutURL),
		roblox.WithRetryCeiling(cfg.Roblox.RetryCeiling),
		roblox.WithRequestTimeout(cfg.Roblox.RequestTimeout),
	)

	account := roblox.NewAccount(engine,
		roblox.WithAccountLogger(slogger),
		roblox.WithIdentityURL(cfg.Roblox.IdentityURL),
		roblox.WithInventoryURL(cfg.Roblox.InventoryURL),
		roblox.WithInventoryCacheTTL(cfg.Roblox.InventoryCacheTTL),
	)

	return account, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
