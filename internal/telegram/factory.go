package telegram

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/net/proxy"

	"github.com/DimaPhil/telegram-forwarder/internal/config"
)

// NewProtoClient creates an authenticated gotgproto client with a SQLite
// session store. On a fresh session the library prompts for the phone number
// and login code on the terminal.
func NewProtoClient(ctx context.Context, cfg *config.Config, sessionFile string) (*gotgproto.Client, error) {
	opts := &gotgproto.ClientOpts{
		Context:          ctx,
		Session:          sessionMaker.SqlSession(sqlite.Open(sessionFile)),
		DisableCopyright: true,
	}

	if cfg.Proxy.Enabled() {
		resolver, err := proxyResolver(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
		opts.Resolver = resolver
	}

	client, err := gotgproto.NewClient(
		cfg.APIID,
		cfg.APIHash,
		gotgproto.ClientTypePhone(""), // empty = use stored session or prompt
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	return client, nil
}

// proxyResolver builds a DC resolver routing through the configured proxy.
func proxyResolver(p config.Proxy) (dcs.Resolver, error) {
	switch p.Type {
	case "socks5":
		var auth *proxy.Auth
		if p.Username != "" {
			auth = &proxy.Auth{User: p.Username, Password: p.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", p.Addr(), auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks5 dialer does not support context dialing")
		}
		return dcs.Plain(dcs.PlainOptions{Dial: ctxDialer.DialContext}), nil

	case "mtproto":
		secret, err := hex.DecodeString(p.Secret)
		if err != nil {
			return nil, fmt.Errorf("decode mtproto secret: %w", err)
		}
		return dcs.MTProxy(p.Addr(), secret, dcs.MTProxyOptions{})

	default:
		return nil, fmt.Errorf("unsupported proxy type: %q", p.Type)
	}
}
