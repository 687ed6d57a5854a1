package tasks

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	rediscache "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/cache/redis"
	kubelog "github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/log"
)

var _ = Describe("Queue", func() {
	var (
		ctx       context.Context
		miniRedis *miniredis.Miniredis
		client    *rediscache.Client
		queue     *Queue
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := kubelog.NewLogger(kubelog.DefaultOptions())

		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		client = rediscache.NewClient(&redis.Options{Addr: miniRedis.Addr()}, logger)
		Expect(client.EnsureConnection(ctx)).To(Succeed())

		queue = NewQueue(client, logger)
		Expect(queue.EnsureGroups(ctx)).To(Succeed())
	})

	AfterEach(func() {
		_ = client.Close()
		miniRedis.Close()
	})

	Describe("EnsureGroups", func() {
		It("is idempotent against an already-created group", func() {
			Expect(queue.EnsureGroups(ctx)).To(Succeed())
		})
	})

	Describe("EnqueueCluster", func() {
		It("appends a cluster job to the cluster stream", func() {
			job := ClusterJob{
				ComplaintID: 1,
				BarangayID:  7,
				CategoryID:  5,
				Description: "Baha sa Purok 3",
				WindowHours: 24,
				BaseWeight:  5.0,
				Threshold:   0.65,
				CreatedAt:   time.Unix(1700000000, 0).UTC(),
			}
			id, err := queue.EnqueueCluster(ctx, job)
			Expect(err).ToNot(HaveOccurred())
			Expect(id).ToNot(BeEmpty())

			length, err := client.Raw().XLen(ctx, StreamCluster).Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(length).To(Equal(int64(1)))
		})
	})

	Describe("EnqueueSeverity", func() {
		It("appends a severity job to the severity stream", func() {
			id, err := queue.EnqueueSeverity(ctx, SeverityJob{IncidentID: 42})
			Expect(err).ToNot(HaveOccurred())
			Expect(id).ToNot(BeEmpty())

			length, err := client.Raw().XLen(ctx, StreamSeverity).Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(length).To(Equal(int64(1)))
		})
	})

	Describe("read and ack", func() {
		It("delivers an enqueued job exactly once per consumer group", func() {
			_, err := queue.EnqueueCluster(ctx, ClusterJob{ComplaintID: 9})
			Expect(err).ToNot(HaveOccurred())

			msgs, err := queue.read(ctx, StreamCluster, "consumer-a", 10, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			Expect(queue.ack(ctx, StreamCluster, msgs[0].ID)).To(Succeed())

			pending, err := client.Raw().XPending(ctx, StreamCluster, consumerGroup).Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(pending.Count).To(Equal(int64(0)))
		})
	})

	Describe("requeue", func() {
		It("re-appends the message with the attempt count incremented", func() {
			_, err := queue.EnqueueCluster(ctx, ClusterJob{ComplaintID: 3})
			Expect(err).ToNot(HaveOccurred())

			msgs, err := queue.read(ctx, StreamCluster, "consumer-a", 10, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			parsed, err := parseMessage(msgs[0])
			Expect(err).ToNot(HaveOccurred())
			Expect(parsed.Attempt).To(Equal(0))
			Expect(parsed.JobID).ToNot(BeEmpty())

			_, err = queue.requeue(ctx, StreamCluster, parsed)
			Expect(err).ToNot(HaveOccurred())

			length, err := client.Raw().XLen(ctx, StreamCluster).Result()
			Expect(err).ToNot(HaveOccurred())
			Expect(length).To(Equal(int64(2)))

			redelivered, err := queue.read(ctx, StreamCluster, "consumer-b", 10, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(redelivered).To(HaveLen(1))
			reparsed, err := parseMessage(redelivered[0])
			Expect(err).ToNot(HaveOccurred())
			Expect(reparsed.Attempt).To(Equal(1))
			Expect(reparsed.JobID).To(Equal(parsed.JobID))
		})
	})

	Describe("deadLetter and DeadLetterDepth", func() {
		It("records the failed job for operator inspection", func() {
			depth, err := queue.DeadLetterDepth(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(depth).To(Equal(int64(0)))

			err = queue.deadLetter(ctx, KindCluster, message{Payload: []byte(`{}`), Attempt: 3}, context.DeadlineExceeded)
			Expect(err).ToNot(HaveOccurred())

			depth, err = queue.DeadLetterDepth(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(depth).To(Equal(int64(1)))
		})
	})
})
