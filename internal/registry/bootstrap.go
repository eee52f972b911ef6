package registry

import (
	"net/http"

	"marketgrid/config"
	"marketgrid/internal/source"
	"marketgrid/logger"
)

// Bootstrap builds every enabled adapter against the shared HTTP client and
// registers it. Config overrides supply alternate base URLs for proxies and
// test environments.
func Bootstrap(cfg *config.Config) (*Registry, *http.Client) {
	client := source.NewHTTPClient(cfg.Client.Timeout.Std(), cfg.Client.ProxyURL)
	reg := New()
	log := logger.GetLogger().WithComponent("registry")

	type builder struct {
		name  string
		build func(src config.SourceConfig) source.Adapter
	}
	builders := []builder{
		{"okx", func(src config.SourceConfig) source.Adapter {
			return source.NewOKX(client, src.BaseURL)
		}},
		{"binance", func(src config.SourceConfig) source.Adapter {
			return source.NewBinance(client, src.BaseURL, src.FuturesURL)
		}},
		{"bybit", func(src config.SourceConfig) source.Adapter {
			return source.NewBybit(client, src.BaseURL)
		}},
		{"kucoin", func(src config.SourceConfig) source.Adapter {
			return source.NewKuCoin(client, src.BaseURL, src.FuturesURL)
		}},
		{"coinbase", func(src config.SourceConfig) source.Adapter {
			return source.NewCoinbase(client, src.BaseURL)
		}},
		{"kraken", func(src config.SourceConfig) source.Adapter {
			return source.NewKraken(client, src.BaseURL)
		}},
		{"coingecko", func(src config.SourceConfig) source.Adapter {
			return source.NewCoinGecko(client, src.BaseURL)
		}},
		{"tradingview", func(src config.SourceConfig) source.Adapter {
			return source.NewTradingView(client, src.BaseURL)
		}},
	}

	for _, b := range builders {
		if !cfg.SourceEnabled(b.name) {
			log.WithFields(logger.Fields{"source": b.name}).Info("source disabled via configuration")
			continue
		}
		override, _ := cfg.SourceOverride(b.name)
		if err := reg.Register(b.build(override)); err != nil {
			log.WithFields(logger.Fields{"source": b.name}).WithError(err).Warn("registration conflict")
		}
	}

	log.WithFields(logger.Fields{"sources": reg.Names()}).Info("source registry initialized")
	return reg, client
}
