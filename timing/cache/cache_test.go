package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/hwaccsim/timing/cache"
)

var _ = Describe("Cache", func() {
	const base = 0x8000_0000

	var (
		c       *cache.Cache
		storage *mem.Storage
	)

	BeforeEach(func() {
		storage = mem.NewStorage(64 * mem.KB)
		// Small cache for testing: 4KB, 4-way, 64B lines
		config := cache.Config{
			Size:          4 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   10,
		}
		c = cache.New(config, cache.NewStorageBacking(storage, base))
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			Expect(storage.Write(0x1000, []byte{0xef, 0xbe, 0xad, 0xde})).To(Succeed())

			result := c.Read(base+0x1000, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(11)))
			Expect(result.Data).To(Equal([]byte{0xef, 0xbe, 0xad, 0xde}))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on different addresses in same cache line", func() {
			c.Read(base+0x1000, 4)

			result := c.Read(base+0x1020, 8)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(c.Stats().HitRate()).To(Equal(0.5))
		})

		It("should split accesses that cross a line", func() {
			Expect(storage.Write(0x103e, []byte{1, 2, 3, 4})).To(Succeed())

			result := c.Read(base+0x103e, 4)
			Expect(result.Data).To(Equal([]byte{1, 2, 3, 4}))
			Expect(c.Stats().Misses).To(Equal(uint64(2)))
			Expect(c.Contains(base + 0x1040)).To(BeTrue())
		})

		It("should report backing store failures", func() {
			result := c.Read(base+128*mem.KB, 4)
			Expect(result.Err).To(HaveOccurred())
			Expect(c.Contains(base + 128*mem.KB)).To(BeFalse())
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			result := c.Write(base+0x2000, []byte{7, 7})
			Expect(result.Hit).To(BeFalse())
			Expect(c.Contains(base + 0x2000)).To(BeTrue())
		})

		It("should make written data visible before writeback", func() {
			c.Write(base+0x2000, []byte{0x11, 0x22})

			Expect(c.Read(base+0x2000, 2).Data).To(Equal([]byte{0x11, 0x22}))

			inStorage, err := storage.Read(0x2000, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(inStorage).To(Equal([]byte{0, 0}))
		})
	})

	Describe("Eviction", func() {
		It("should evict the least recently used way", func() {
			for i := uint64(0); i < 4; i++ {
				c.Read(base+i*1024, 4)
			}
			c.Read(base, 4)

			result := c.Read(base+4*1024, 4)
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(base + 1024)))
			Expect(c.Contains(base)).To(BeTrue())
		})

		It("should writeback dirty evicted blocks", func() {
			c.Write(base, []byte{0x5a})
			for i := uint64(1); i <= 4; i++ {
				c.Read(base+i*1024, 4)
			}

			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
			data, err := storage.Read(0, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{0x5a}))
		})
	})

	Describe("Flush", func() {
		It("should write back all dirty blocks", func() {
			c.Write(base+0x100, []byte{1})
			c.Write(base+0x200, []byte{2})

			Expect(c.Flush()).To(Succeed())
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
			Expect(c.Contains(base + 0x100)).To(BeFalse())

			data, _ := storage.Read(0x200, 1)
			Expect(data).To(Equal([]byte{2}))
		})
	})

	It("should invalidate a line without writeback", func() {
		c.Write(base+0x100, []byte{1})
		c.Invalidate(base + 0x100)

		Expect(c.Contains(base + 0x100)).To(BeFalse())
		Expect(c.Stats().Writebacks).To(BeZero())
	})

	It("should reset", func() {
		c.Read(base, 4)
		c.Reset()
		Expect(c.Contains(base)).To(BeFalse())
		Expect(c.Stats()).To(Equal(cache.Statistics{}))
	})
})
