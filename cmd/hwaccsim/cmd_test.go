package main

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hwaccsim/loader"
	"github.com/sarchlab/hwaccsim/recorder"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

const countWorkload = `
functions:
  - name: count
    args: 1
    blocks:
      - name: entry
        insts:
          - op: br
            targets: [loop]
      - name: loop
        insts:
          - name: i
            op: phi
            type: i32
            incoming:
              - {block: entry, value: "#0"}
              - {block: loop, value: "%next"}
          - name: next
            op: add
            type: i32
            operands: ["%i", "#1"]
          - name: cond
            op: icmp
            type: i1
            operand_type: i32
            pred: slt
            operands: ["%next", "$0"]
          - op: br
            operands: ["%cond"]
            targets: [loop, exit]
      - name: exit
        insts:
          - op: ret
            type: i32
            operands: ["%next"]
args:
  - {type: i32, value: "4"}
`

var _ = Describe("Commands", func() {
	var (
		tempDir  string
		workload string
		stdout   *bytes.Buffer
		stderr   *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "hwaccsim-test")
		Expect(err).NotTo(HaveOccurred())

		workload = filepath.Join(tempDir, "count.yaml")
		Expect(os.WriteFile(workload, []byte(countWorkload), 0o644)).To(Succeed())

		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	execute := func(args ...string) error {
		root := newRootCmd()
		root.SetOut(stdout)
		root.SetErr(stderr)
		root.SetArgs(args)
		return root.Execute()
	}

	It("should reject an unknown log level", func() {
		err := execute("--log-level", "loud", "validate", workload)
		Expect(err).To(MatchError(ContainSubstring("invalid log level")))
	})

	Describe("validate", func() {
		It("should accept a valid workload", func() {
			Expect(execute("validate", workload)).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("ok (top count, 1 functions, 3 blocks"))
		})

		It("should export the normalized workload", func() {
			out := filepath.Join(tempDir, "normalized.json")
			Expect(execute("validate", workload, "--export", out)).To(Succeed())

			prog, err := loader.Load(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Graph.NumInsts()).To(Equal(6))
		})

		It("should report a missing hardware configuration", func() {
			err := execute("validate", workload, "--config",
				filepath.Join(tempDir, "missing.json"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("run", func() {
		It("should write the report", func() {
			out := filepath.Join(tempDir, "report.json")
			Expect(execute("run", workload, "--out", out, "--quiet")).To(Succeed())

			data, err := os.ReadFile(out)
			Expect(err).NotTo(HaveOccurred())
			report, err := stats.Unmarshal(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Performance.Finished).To(BeTrue())
			Expect(report.Performance.TotalCycles).To(Equal(
				report.Performance.ExecutedNodes + report.Performance.StallCycles + 1))
		})

		It("should print a compact report and a summary", func() {
			Expect(execute("run", workload, "--compact")).To(Succeed())
			Expect(bytes.Count(bytes.TrimSpace(stdout.Bytes()), []byte("\n"))).To(BeZero())
			Expect(stderr.String()).To(ContainSubstring("Accelerator Simulation Summary"))
		})

		It("should record the run and its trace", func() {
			db := filepath.Join(tempDir, "runs.sqlite3")
			Expect(execute("run", workload, "--quiet", "--record", db, "--trace")).To(Succeed())

			rec, err := recorder.Open(db)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = rec.Close() }()

			runs, err := rec.ListRuns()
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))

			trace, err := rec.Trace(runs[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(trace).NotTo(BeEmpty())

			stdout.Reset()
			Expect(execute("runs", db)).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring(runs[0].ID))
		})

		It("should require a database for tracing", func() {
			err := execute("run", workload, "--trace")
			Expect(err).To(MatchError(ContainSubstring("--trace requires --record")))
		})

		It("should stop at the cycle limit", func() {
			out := filepath.Join(tempDir, "report.json")
			Expect(execute("run", workload, "--out", out, "--quiet",
				"--max-cycles", "3")).To(Succeed())

			data, err := os.ReadFile(out)
			Expect(err).NotTo(HaveOccurred())
			report, err := stats.Unmarshal(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Performance.Finished).To(BeFalse())
		})
	})

	Describe("bench", func() {
		It("should run the selected kernels", func() {
			Expect(execute("bench", "--only", "matmul_2x2,vector_add",
				"--format", "csv")).To(Succeed())
			Expect(stdout.String()).To(ContainSubstring("matmul_2x2,"))
			Expect(stdout.String()).To(ContainSubstring("vector_add,"))
		})

		It("should reject unknown kernels", func() {
			err := execute("bench", "--only", "nope")
			Expect(err).To(MatchError(ContainSubstring("unknown benchmark")))
		})
	})
})
