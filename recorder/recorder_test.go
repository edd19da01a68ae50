package recorder_test

import (
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/host"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/recorder"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

func addGraph() *cdfg.Graph {
	b := cdfg.NewBuilder()
	fn := b.AddFunction("add", 2)
	entry := b.AddBlock(fn, "entry")
	sum := b.AddInst(entry, cdfg.Instruction{Name: "sum", Op: insts.OpAdd,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Arg(0), cdfg.Arg(1)}})
	b.AddInst(entry, cdfg.Instruction{Name: "ret", Op: insts.OpRet,
		Type: insts.I32, Operands: []cdfg.Operand{cdfg.Ref(sum)}})
	b.SetTop(fn)

	g, err := b.Build()
	Expect(err).NotTo(HaveOccurred())
	return g
}

var _ = Describe("Recorder", func() {
	var (
		tempDir string
		rec     *recorder.Recorder
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "recorder-test")
		Expect(err).NotTo(HaveOccurred())

		rec, err = recorder.New(filepath.Join(tempDir, "runs.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = rec.Close()
		_ = os.RemoveAll(tempDir)
	})

	It("should store and read back a report", func() {
		report := stats.Report{Header: stats.Header{
			Version: stats.Version, AcceleratorName: "acc"}}
		report.Performance.TotalCycles = 12
		report.Performance.StallCycles = 4
		report.Performance.ExecutedNodes = 7
		report.Performance.Finished = true
		report.Dataflow.ILP = 1.5
		report.Power.TotalPowerMW = stats.Float(math.NaN())

		id, err := rec.RecordRun(report)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		run, err := rec.GetRun(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Name).To(Equal("acc"))
		Expect(run.TotalCycles).To(Equal(uint64(12)))
		Expect(run.Finished).To(BeTrue())
		Expect(run.ILP).To(Equal(1.5))
		Expect(run.PowerMW).To(BeZero())
		Expect(run.Timestamp).NotTo(BeEmpty())

		Expect(run.Report.RunID).To(Equal(id))
		Expect(run.Report.Performance.StallCycles).To(Equal(uint64(4)))
		Expect(math.IsNaN(float64(run.Report.Power.TotalPowerMW))).To(BeTrue())
	})

	It("should list runs in recording order", func() {
		first, err := rec.RecordRun(stats.Report{Header: stats.Header{AcceleratorName: "a"}})
		Expect(err).NotTo(HaveOccurred())
		second, err := rec.RecordRun(stats.Report{Header: stats.Header{AcceleratorName: "b"}})
		Expect(err).NotTo(HaveOccurred())

		runs, err := rec.ListRuns()
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(HaveLen(2))
		Expect(runs[0].ID).To(Equal(first))
		Expect(runs[1].ID).To(Equal(second))
		Expect(first).NotTo(Equal(second))
	})

	It("should report unknown runs", func() {
		_, err := rec.GetRun("nope")
		Expect(err).To(MatchError(recorder.ErrRunNotFound))
	})

	It("should keep the data when reopened", func() {
		id, err := rec.RecordRun(stats.Report{})
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Close()).To(Succeed())

		rec, err = recorder.Open(filepath.Join(tempDir, "runs.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
		_, err = rec.GetRun(id)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse to open a missing database", func() {
		_, err := recorder.Open(filepath.Join(tempDir, "missing.sqlite3"))
		Expect(err).To(HaveOccurred())
	})

	Describe("TraceHook", func() {
		run := func(r *recorder.Recorder) stats.Report {
			runner, err := host.NewRunner(addGraph(), latency.DefaultConfig(),
				host.WithHooks(r.TraceHook()))
			Expect(err).NotTo(HaveOccurred())

			report, err := runner.Run(emu.IntValue(40, insts.I32), emu.IntValue(2, insts.I32))
			Expect(err).NotTo(HaveOccurred())
			return report
		}

		It("should trace every issue and retirement of a run", func() {
			id, err := rec.RecordRun(run(rec))
			Expect(err).NotTo(HaveOccurred())

			trace, err := rec.Trace(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(trace).To(HaveLen(4))

			issues := 0
			for _, e := range trace {
				Expect(e.RunID).To(Equal(id))
				if e.Event == recorder.EventIssue {
					issues++
				}
			}
			Expect(issues).To(Equal(2))
			Expect(trace[0].Opcode).To(Equal("add"))
			Expect(trace[0].Event).To(Equal(recorder.EventIssue))
		})

		It("should write full batches before the run is recorded", func() {
			small, err := recorder.New(filepath.Join(tempDir, "small.sqlite3"),
				recorder.WithBatchSize(1))
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = small.Close() }()

			report := run(small)
			report.RunID = "custom"
			id, err := small.RecordRun(report)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("custom"))

			trace, err := small.Trace("custom")
			Expect(err).NotTo(HaveOccurred())
			Expect(trace).To(HaveLen(4))
		})
	})
})
