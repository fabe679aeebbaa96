package request_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/frahmantamala/song-requests/internal/request"
)

var _ = Describe("RedisStatusCache", func() {
	var (
		ctx   context.Context
		mr    *miniredis.Miniredis
		cache *request.RedisStatusCache
	)

	BeforeEach(func() {
		ctx = context.Background()
		mr = miniredis.RunT(GinkgoT())
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(rdb.Close)
		cache = request.NewRedisStatusCache(rdb, 5*time.Minute)
	})

	It("answers false for requests it has never seen", func() {
		paid, err := cache.IsPaid(ctx, "req-unknown")
		Expect(err).NotTo(HaveOccurred())
		Expect(paid).To(BeFalse())
	})

	It("remembers a paid request until the ttl runs out", func() {
		Expect(cache.MarkPaid(ctx, "req-1")).To(Succeed())
		Expect(mr.TTL("song_requests:paid:req-1")).To(Equal(5 * time.Minute))

		paid, err := cache.IsPaid(ctx, "req-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(paid).To(BeTrue())

		mr.FastForward(5*time.Minute + time.Second)
		paid, err = cache.IsPaid(ctx, "req-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(paid).To(BeFalse())
	})

	It("forgets a request after a refund", func() {
		Expect(cache.MarkPaid(ctx, "req-2")).To(Succeed())
		Expect(cache.Forget(ctx, "req-2")).To(Succeed())

		Expect(mr.Exists("song_requests:paid:req-2")).To(BeFalse())
		paid, err := cache.IsPaid(ctx, "req-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(paid).To(BeFalse())
	})

	It("defaults the ttl when none is configured", func() {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(rdb.Close)
		Expect(request.NewRedisStatusCache(rdb, 0).MarkPaid(ctx, "req-3")).To(Succeed())
		Expect(mr.TTL("song_requests:paid:req-3")).To(Equal(10 * time.Minute))
	})
})
