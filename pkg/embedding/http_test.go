package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/embedding"
	kubelog "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/log"
	rediscache "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/cache/redis"
)

var _ = Describe("HTTP Embedding Client", func() {
	var (
		ctx         context.Context
		logger      logr.Logger
		miniRedis   *miniredis.Miniredis
		redisClient *rediscache.Client
		cache       *rediscache.Cache[[]float32]
		server      *httptest.Server
		client      embedding.Embedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = kubelog.NewLogger(kubelog.DefaultOptions())

		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		redisClient = rediscache.NewClient(&redis.Options{Addr: miniRedis.Addr()}, logger)
		Expect(redisClient.EnsureConnection(ctx)).To(Succeed())

		cache = rediscache.NewCache[[]float32](redisClient, "embeddings", 24*time.Hour)
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if miniRedis != nil {
			miniRedis.Close()
		}
	})

	Describe("NewHTTPEmbedder", func() {
		It("should create a new embedding client", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			Expect(client).ToNot(BeNil())
		})
	})

	Describe("Embed", func() {
		Context("when the service returns a valid embedding", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					Expect(r.Method).To(Equal("POST"))
					Expect(r.URL.Path).To(Equal("/api/v1/embed"))
					Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

					mockEmbedding := make([]float32, 384)
					for i := range mockEmbedding {
						mockEmbedding[i] = float32(i) * 0.001
					}

					resp := embedding.EmbedResponse{
						Embedding:  mockEmbedding,
						Dimensions: 384,
						Model:      "complaint-encoder-v1",
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(resp)
				}))

				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should generate the embedding successfully", func() {
				emb, err := client.Embed(ctx, "overflowing garbage bins along Purok 3")
				Expect(err).ToNot(HaveOccurred())
				Expect(emb).To(HaveLen(384))
				Expect(emb[0]).To(BeNumerically("~", 0.0, 0.001))
				Expect(emb[383]).To(BeNumerically("~", 0.383, 0.001))
			})

			It("should cache the embedding for future requests", func() {
				text := "overflowing garbage bins along Purok 3"

				emb1, err := client.Embed(ctx, text)
				Expect(err).ToNot(HaveOccurred())

				time.Sleep(100 * time.Millisecond)

				emb2, err := client.Embed(ctx, text)
				Expect(err).ToNot(HaveOccurred())
				Expect(emb2).To(Equal(emb1))
			})
		})

		Context("when text is empty", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return an error", func() {
				_, err := client.Embed(ctx, "")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("must not be empty"))
			})
		})

		Context("when the service returns a client error", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte(`{"error": "text too long"}`))
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return an error without retrying", func() {
				_, err := client.Embed(ctx, "test text")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("status 400"))
			})
		})

		Context("when the service is temporarily unavailable", func() {
			var callCount int

			BeforeEach(func() {
				callCount = 0
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					callCount++
					if callCount < 3 {
						w.WriteHeader(http.StatusServiceUnavailable)
						return
					}
					resp := embedding.EmbedResponse{
						Embedding:  make([]float32, 384),
						Dimensions: 384,
						Model:      "complaint-encoder-v1",
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(resp)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should retry and eventually succeed", func() {
				emb, err := client.Embed(ctx, "test text")
				Expect(err).ToNot(HaveOccurred())
				Expect(emb).To(HaveLen(384))
				Expect(callCount).To(Equal(3))
			})
		})

		Context("when the service returns the wrong dimensions", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					resp := embedding.EmbedResponse{
						Embedding:  make([]float32, 512),
						Dimensions: 512,
						Model:      "wrong-model",
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(resp)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return an error", func() {
				_, err := client.Embed(ctx, "test text")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unexpected embedding dimensions"))
			})
		})

		Context("when the cache is unavailable", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					resp := embedding.EmbedResponse{
						Embedding:  make([]float32, 384),
						Dimensions: 384,
						Model:      "complaint-encoder-v1",
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(resp)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, nil, logger)
			})

			It("should proceed without caching", func() {
				emb, err := client.Embed(ctx, "test text")
				Expect(err).ToNot(HaveOccurred())
				Expect(emb).To(HaveLen(384))
			})
		})

		Context("when the context is cancelled", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(2 * time.Second)
					w.WriteHeader(http.StatusOK)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return a context error", func() {
				cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				defer cancel()

				_, err := client.Embed(cancelCtx, "test text")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(Or(
					ContainSubstring("context"),
					ContainSubstring("deadline exceeded"),
				))
			})
		})
	})

	Describe("Health", func() {
		Context("when the service is healthy", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					Expect(r.Method).To(Equal("GET"))
					Expect(r.URL.Path).To(Equal("/health"))

					resp := embedding.HealthResponse{
						Status:     "healthy",
						Model:      "complaint-encoder-v1",
						Dimensions: 384,
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusOK)
					json.NewEncoder(w).Encode(resp)
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return no error", func() {
				Expect(client.(*embedding.HTTPEmbedder).Health(ctx)).To(Succeed())
			})
		})

		Context("when the service is unhealthy", func() {
			BeforeEach(func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte(`{"error": "service unavailable"}`))
				}))
				client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
			})

			It("should return an error", func() {
				err := client.(*embedding.HTTPEmbedder).Health(ctx)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("status 503"))
			})
		})
	})

	Describe("retry exhaustion", func() {
		var callCount int

		BeforeEach(func() {
			callCount = 0
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				callCount++
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
		})

		It("should fail after exhausting its retries", func() {
			_, err := client.Embed(ctx, "test text")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed after"))
			Expect(callCount).To(Equal(4))
		})
	})

	Describe("cache integration", func() {
		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mockEmbedding := make([]float32, 384)
				for i := range mockEmbedding {
					mockEmbedding[i] = 0.5
				}
				resp := embedding.EmbedResponse{
					Embedding:  mockEmbedding,
					Dimensions: 384,
					Model:      "complaint-encoder-v1",
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(resp)
			}))
			client = embedding.NewHTTPEmbedder(server.URL, cache, logger)
		})

		It("should cache embeddings with the configured TTL", func() {
			text := "reported flooding in barangay hall area"

			emb1, err := client.Embed(ctx, text)
			Expect(err).ToNot(HaveOccurred())

			time.Sleep(100 * time.Millisecond)

			cached, found, err := cache.Get(ctx, text)
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(cached).To(Equal(emb1))
		})

		It("should regenerate embeddings once the cache entry expires", func() {
			mr := miniRedis
			shortTTLCache := rediscache.NewCache[[]float32](redisClient, "embeddings-ttl-test", 1*time.Second)

			callCount := 0
			shortServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				callCount++
				resp := embedding.EmbedResponse{
					Embedding:  make([]float32, 384),
					Dimensions: 384,
					Model:      "complaint-encoder-v1",
				}
				json.NewEncoder(w).Encode(resp)
			}))
			defer shortServer.Close()

			shortClient := embedding.NewHTTPEmbedder(shortServer.URL, shortTTLCache, logger)
			text := "test cache expiration"

			_, err := shortClient.Embed(ctx, text)
			Expect(err).ToNot(HaveOccurred())
			Expect(callCount).To(Equal(1))

			time.Sleep(100 * time.Millisecond)

			_, err = shortClient.Embed(ctx, text)
			Expect(err).ToNot(HaveOccurred())
			Expect(callCount).To(Equal(1), "should hit the cache on the second call")

			mr.FastForward(2 * time.Second)

			_, err = shortClient.Embed(ctx, text)
			Expect(err).ToNot(HaveOccurred())
			Expect(callCount).To(Equal(2), "should regenerate after the cache entry expires")
		})
	})
})
