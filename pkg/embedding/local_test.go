package embedding_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/embedding"
	sharedmath "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/shared/math"
	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
)

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

var _ = Describe("LocalEmbedder", func() {
	var (
		service *embedding.LocalEmbedder
		logger  *logrus.Logger
		ctx     context.Context
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
		ctx = context.Background()
	})

	Describe("NewLocalEmbedder", func() {
		Context("when creating with a valid dimension", func() {
			It("should create the embedder with the specified dimension", func() {
				service = embedding.NewLocalEmbedder(512, logger)

				Expect(service).NotTo(BeNil())
				Expect(service.Dimension()).To(Equal(512))
			})
		})

		Context("when creating with zero dimension", func() {
			It("should use the default dimension", func() {
				service = embedding.NewLocalEmbedder(0, logger)

				Expect(service).NotTo(BeNil())
				Expect(service.Dimension()).To(Equal(384))
			})
		})

		Context("when creating with negative dimension", func() {
			It("should use the default dimension", func() {
				service = embedding.NewLocalEmbedder(-100, logger)

				Expect(service.Dimension()).To(Equal(384))
			})
		})

		Context("when creating with a nil logger", func() {
			It("should handle the nil logger gracefully", func() {
				service = embedding.NewLocalEmbedder(384, nil)

				Expect(service).NotTo(BeNil())
			})
		})
	})

	Describe("Embed", func() {
		BeforeEach(func() {
			service = embedding.NewLocalEmbedder(384, logger)
		})

		Context("when embedding valid complaint text", func() {
			It("should produce a normalized embedding", func() {
				vec, err := service.Embed(ctx, "overflowing garbage bins along Purok 3")

				Expect(err).NotTo(HaveOccurred())
				Expect(vec).To(HaveLen(384))

				var sumSquares float64
				for _, val := range vec {
					sumSquares += float64(val) * float64(val)
				}
				Expect(sumSquares).To(BeNumerically("~", 1.0, 0.01))
			})

			It("should produce different embeddings for different complaints", func() {
				vec1, err1 := service.Embed(ctx, "loud videoke noise every night")
				vec2, err2 := service.Embed(ctx, "stray dogs roaming near the school")

				Expect(err1).NotTo(HaveOccurred())
				Expect(err2).NotTo(HaveOccurred())

				different := false
				for i := range vec1 {
					if vec1[i] != vec2[i] {
						different = true
						break
					}
				}
				Expect(different).To(BeTrue())
			})

			It("should produce consistent embeddings for the same text", func() {
				text := "flooding along the main road after heavy rain"

				vec1, err1 := service.Embed(ctx, text)
				vec2, err2 := service.Embed(ctx, text)

				Expect(err1).NotTo(HaveOccurred())
				Expect(err2).NotTo(HaveOccurred())
				Expect(vec1).To(Equal(vec2))
			})
		})

		Context("when embedding empty text", func() {
			It("should reject it with InvalidInput", func() {
				vec, err := service.Embed(ctx, "")

				Expect(vec).To(BeNil())
				var invalidInput *ucrserrors.InvalidInputError
				Expect(errors.As(err, &invalidInput)).To(BeTrue())
			})
		})

		Context("when embedding whitespace-only text", func() {
			It("should reject it with InvalidInput", func() {
				vec, err := service.Embed(ctx, "   \t\n  ")

				Expect(vec).To(BeNil())
				var invalidInput *ucrserrors.InvalidInputError
				Expect(errors.As(err, &invalidInput)).To(BeTrue())
			})
		})

		Context("when embedding very long text", func() {
			It("should handle it efficiently", func() {
				longText := strings.Repeat("barangay complaint noise garbage flooding road ", 100)

				vec, err := service.Embed(ctx, longText)

				Expect(err).NotTo(HaveOccurred())
				Expect(vec).To(HaveLen(384))
			})
		})
	})

	Describe("Dimension", func() {
		It("should return the configured dimension", func() {
			service = embedding.NewLocalEmbedder(512, logger)

			Expect(service.Dimension()).To(Equal(512))
		})
	})

	Describe("semantic grouping", func() {
		BeforeEach(func() {
			service = embedding.NewLocalEmbedder(384, logger)
		})

		Context("when processing related noise complaints", func() {
			It("should produce more similar embeddings than unrelated complaints", func() {
				noiseTexts := []string{
					"loud noise from karaoke past midnight",
					"videoke noise disturbing sleep",
					"neighbor noise from music every night",
				}

				var embeddings [][]float64
				for _, text := range noiseTexts {
					vec, err := service.Embed(ctx, text)
					Expect(err).NotTo(HaveOccurred())
					embeddings = append(embeddings, toFloat64(vec))
				}

				for i := 0; i < len(embeddings); i++ {
					for j := i + 1; j < len(embeddings); j++ {
						similarity := sharedmath.CosineSimilarity(embeddings[i], embeddings[j])
						Expect(similarity).To(BeNumerically(">", 0.01))
					}
				}
			})
		})
	})
})
