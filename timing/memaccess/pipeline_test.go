package memaccess_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/hwaccsim/timing/memaccess"
)

var _ = Describe("Pipeline", func() {
	var (
		mockCtrl  *gomock.Controller
		port      *MockPort
		callback  func(memaccess.Response)
		completed []memaccess.RequestID
		p         *memaccess.Pipeline
	)

	route := memaccess.RouterFunc(func(addr uint64, size uint32) int {
		if addr >= 0x1000 && addr+uint64(size) <= 0x2000 {
			return 0
		}
		return -1
	})

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		port = NewMockPort(mockCtrl)
		completed = nil

		port.EXPECT().SetCompletionCallback(gomock.Any()).
			Do(func(fn func(memaccess.Response)) { callback = fn })

		p = memaccess.NewPipeline(route, []memaccess.Port{port},
			memaccess.WithQueueDepth(2),
			memaccess.WithCompletionHandler(func(id memaccess.RequestID) {
				completed = append(completed, id)
			}))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should send directly to a ready port", func() {
		port.EXPECT().IsReady().Return(true)
		port.EXPECT().SendTimingRequest(gomock.Any()).
			DoAndReturn(func(req memaccess.Request) bool {
				Expect(req.Addr).To(Equal(uint64(0x1000)))
				Expect(req.Kind).To(Equal(memaccess.Read))
				return true
			})

		id, ok := p.LaunchRead(7, 0x1000, 4, 10)
		Expect(ok).To(BeTrue())
		Expect(p.InFlight()).To(Equal(1))
		Expect(p.Queued()).To(BeZero())

		callback(memaccess.Response{ID: id, Success: true,
			Data: []byte{1, 2, 3, 4}, Cycle: 14})

		req := p.Get(id)
		Expect(req.Completed).To(BeTrue())
		Expect(req.Success).To(BeTrue())
		Expect(req.Data).To(Equal([]byte{1, 2, 3, 4}))
		Expect(req.Latency()).To(Equal(uint64(4)))
		Expect(req.Owner).To(Equal(uint64(7)))
		Expect(completed).To(ConsistOf(id))
		Expect(p.Drained()).To(BeTrue())

		p.Release(id)
		Expect(func() { p.Release(id) }).To(Panic())
	})

	It("should queue behind a busy port and retry in FIFO order", func() {
		port.EXPECT().IsReady().Return(false)
		first, ok := p.LaunchWrite(1, 0x1000, []byte{9}, 3)
		Expect(ok).To(BeTrue())

		second, ok := p.LaunchWrite(2, 0x1004, []byte{8}, 3)
		Expect(ok).To(BeTrue())
		Expect(p.Queued()).To(Equal(2))

		var sent []uint64
		port.EXPECT().IsReady().Return(true).Times(2)
		port.EXPECT().SendTimingRequest(gomock.Any()).
			DoAndReturn(func(req memaccess.Request) bool {
				sent = append(sent, req.Owner)
				return len(sent) == 1
			}).Times(2)

		p.Tick(4)

		Expect(sent).To(Equal([]uint64{1, 2}))
		Expect(p.Queued()).To(Equal(1))
		Expect(p.Stats().PortContention).To(Equal(uint64(1)))
		Expect(p.Get(first).Port).To(Equal(0))
		Expect(p.Get(second).Completed).To(BeFalse())
	})

	It("should reject launches once the queue is full", func() {
		port.EXPECT().IsReady().Return(false).AnyTimes()

		_, ok := p.LaunchRead(1, 0x1000, 4, 0)
		Expect(ok).To(BeTrue())
		_, ok = p.LaunchRead(2, 0x1000, 4, 0)
		Expect(ok).To(BeTrue())
		id, ok := p.LaunchRead(3, 0x1000, 4, 0)
		Expect(ok).To(BeFalse())
		Expect(id).To(Equal(memaccess.NoRequest))

		s := p.Stats()
		Expect(s.Rejected).To(Equal(uint64(1)))
		Expect(s.Reads).To(Equal(uint64(2)))
		Expect(s.Ports[0].Rejected).To(Equal(uint64(1)))
	})

	It("should fail accesses outside every region without stopping", func() {
		id, ok := p.LaunchRead(1, 0x10, 4, 5)
		Expect(ok).To(BeTrue())

		req := p.Get(id)
		Expect(req.Completed).To(BeTrue())
		Expect(req.Success).To(BeFalse())
		Expect(completed).To(ConsistOf(id))
		Expect(p.Stats().Failures).To(Equal(uint64(1)))
	})

	It("should ignore duplicate completions", func() {
		port.EXPECT().IsReady().Return(true)
		port.EXPECT().SendTimingRequest(gomock.Any()).Return(true)

		id, _ := p.LaunchRead(1, 0x1000, 4, 0)
		callback(memaccess.Response{ID: id, Success: true, Cycle: 2})
		callback(memaccess.Response{ID: id, Success: true, Cycle: 3})

		Expect(completed).To(HaveLen(1))
		Expect(p.Stats().Completed).To(Equal(uint64(1)))
	})

	It("should reuse released slots", func() {
		port.EXPECT().IsReady().Return(true).Times(2)
		port.EXPECT().SendTimingRequest(gomock.Any()).Return(true).Times(2)

		id, _ := p.LaunchRead(1, 0x1000, 4, 0)
		callback(memaccess.Response{ID: id, Success: true, Cycle: 1})
		p.Release(id)

		again, _ := p.LaunchRead(2, 0x1000, 4, 1)
		Expect(again).To(Equal(id))
	})

	It("should pass functional requests straight to the port", func() {
		port.EXPECT().SendFunctional(gomock.Any()).
			Do(func(req *memaccess.Request) {
				req.Data = []byte{0xaa, 0xbb}
				req.Success = true
			})

		req := p.LaunchFunctional(memaccess.Read, 0x1800, make([]byte, 2))
		Expect(req.Success).To(BeTrue())
		Expect(req.Data).To(Equal([]byte{0xaa, 0xbb}))
		Expect(p.InFlight()).To(BeZero())
	})

	It("should report min, max and mean latency", func() {
		port.EXPECT().IsReady().Return(true).Times(2)
		port.EXPECT().SendTimingRequest(gomock.Any()).Return(true).Times(2)

		a, _ := p.LaunchRead(1, 0x1000, 4, 0)
		b, _ := p.LaunchRead(2, 0x1000, 4, 0)
		callback(memaccess.Response{ID: a, Success: true, Cycle: 2})
		callback(memaccess.Response{ID: b, Success: true, Cycle: 6})

		s := p.Stats()
		Expect(s.LatencyMin).To(Equal(uint64(2)))
		Expect(s.LatencyMax).To(Equal(uint64(6)))
		Expect(s.AvgLatency()).To(Equal(4.0))
		Expect(s.BytesRead).To(Equal(uint64(8)))
	})

	It("should reset", func() {
		port.EXPECT().IsReady().Return(false)
		p.LaunchRead(1, 0x1000, 4, 0)
		p.Reset()

		Expect(p.Drained()).To(BeTrue())
		Expect(p.Queued()).To(BeZero())
		Expect(p.Stats().Reads).To(BeZero())
	})
})
