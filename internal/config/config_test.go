package config

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ServerConfig", func() {
	Context("valid configuration", func() {
		It("loads a complete config and applies defaults", func() {
			cfg, err := LoadFromFile("testdata/valid-config.yaml")
			Expect(err).ToNot(HaveOccurred())

			Expect(cfg.Server.ListenAddr).To(Equal(":8090"))
			Expect(cfg.LanguageModel.APIKey).To(Equal("test-key"))
			Expect(cfg.Triplestore.QueryEndpoint).To(Equal("http://triplestore.internal:3030/ds/query"))
			Expect(cfg.Cache.Backend).To(Equal("memory"))
			Expect(cfg.Server.IdleTimeout).To(Equal(Duration(30 * time.Second)))

			Expect(cfg.Validate()).To(Succeed())
		})

		It("supports environment variable overrides", func() {
			cfg, err := LoadFromFile("testdata/valid-config.yaml")
			Expect(err).ToNot(HaveOccurred())

			Expect(os.Setenv("NLQUERY_LISTEN_ADDR", ":9999")).To(Succeed())
			Expect(os.Setenv("NLQUERY_CACHE_BACKEND", "redis")).To(Succeed())
			Expect(os.Setenv("NLQUERY_REDIS_ADDR", "localhost:6379")).To(Succeed())
			defer func() {
				_ = os.Unsetenv("NLQUERY_LISTEN_ADDR")
				_ = os.Unsetenv("NLQUERY_CACHE_BACKEND")
				_ = os.Unsetenv("NLQUERY_REDIS_ADDR")
			}()

			cfg.LoadFromEnv()

			Expect(cfg.Server.ListenAddr).To(Equal(":9999"))
			Expect(cfg.Cache.Backend).To(Equal("redis"))
			Expect(cfg.Cache.RedisAddr).To(Equal("localhost:6379"))
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Context("invalid configuration", func() {
		It("rejects a config missing the listen address", func() {
			cfg := &ServerConfig{
				LanguageModel: LanguageModelSettings{APIKey: "k", Model: "m", MaxTokens: 1024},
				Triplestore:   TriplestoreSettings{QueryEndpoint: "http://localhost:3030/query"},
			}
			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
		})

		It("rejects redis backend without a redis address", func() {
			cfg := &ServerConfig{
				Server:        ServerSettings{ListenAddr: ":8090"},
				LanguageModel: LanguageModelSettings{APIKey: "k", Model: "m", MaxTokens: 1024},
				Triplestore:   TriplestoreSettings{QueryEndpoint: "http://localhost:3030/query"},
				Cache:         CacheSettings{Backend: "redis"},
			}
			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("redis_addr"))
		})
	})
})
