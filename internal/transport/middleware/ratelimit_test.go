package middleware_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/frahmantamala/song-requests/internal/transport/middleware"
)

var _ = Describe("RedisLimiter", func() {
	var (
		ctx     context.Context
		mr      *miniredis.Miniredis
		rdb     *redis.Client
		limiter *middleware.RedisLimiter
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(rdb.Close)

		now = time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)
		limiter = middleware.NewRedisLimiter(rdb, "ratelimit:submit:", 2, time.Minute).
			WithClock(func() time.Time { return now })
	})

	It("admits up to the limit inside one window", func() {
		for i := 0; i < 2; i++ {
			ok, err := limiter.Allow(ctx, "ip:203.0.113.7")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			now = now.Add(time.Second)
		}

		ok, err := limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		members, err := rdb.ZCard(ctx, "ratelimit:submit:ip:203.0.113.7").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(members).To(Equal(int64(2)))
		Expect(mr.TTL("ratelimit:submit:ip:203.0.113.7")).To(Equal(time.Minute))
	})

	It("counts each client separately", func() {
		for i := 0; i < 2; i++ {
			_, err := limiter.Allow(ctx, "ip:203.0.113.7")
			Expect(err).NotTo(HaveOccurred())
			now = now.Add(time.Millisecond)
		}

		ok, err := limiter.Allow(ctx, "ip:198.51.100.4")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("frees a slot once the oldest call leaves the window", func() {
		_, err := limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).NotTo(HaveOccurred())
		now = now.Add(30 * time.Second)
		_, err = limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(31 * time.Second)
		ok, err := limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("surfaces a Redis outage so the middleware can fail open", func() {
		mr.Close()
		_, err := limiter.Allow(ctx, "ip:203.0.113.7")
		Expect(err).To(HaveOccurred())
	})
})
