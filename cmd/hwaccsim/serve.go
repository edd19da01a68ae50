package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/recorder"
)

func (a *app) newServeCmd() *cobra.Command {
	var (
		addr string
		open bool
	)

	cmd := &cobra.Command{
		Use:   "serve DB",
		Short: "Serve the runs recorded in a database as a JSON API.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.Open(args[0], recorder.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close() }()

			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			url := fmt.Sprintf("http://localhost:%d/api/runs",
				listener.Addr().(*net.TCPAddr).Port)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s at %s\n", args[0], url)

			if open {
				if err := browser.OpenURL(url); err != nil {
					a.logger.Warn("failed to open browser", "err", err)
				}
			}

			return http.Serve(listener, newAPIRouter(rec, a.logger))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:0", "Address to listen on")
	cmd.Flags().BoolVar(&open, "open", false, "Open the API in a browser")

	return cmd
}

type apiServer struct {
	rec    *recorder.Recorder
	logger *slog.Logger
}

func newAPIRouter(rec *recorder.Recorder, logger *slog.Logger) *mux.Router {
	s := &apiServer{rec: rec, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/api/runs", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}", s.getRun).Methods(http.MethodGet)
	r.HandleFunc("/api/runs/{id}/trace", s.getTrace).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.resource).Methods(http.MethodGet)

	return r
}

func (s *apiServer) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.rec.ListRuns()
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []recorder.RunSummary{}
	}
	s.write(w, runs)
}

func (s *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.rec.GetRun(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, run)
}

func (s *apiServer) getTrace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.rec.GetRun(id); err != nil {
		s.fail(w, err)
		return
	}

	trace, err := s.rec.Trace(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if trace == nil {
		trace = []recorder.TraceEntry{}
	}
	s.write(w, trace)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *apiServer) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.fail(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.fail(w, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		s.fail(w, err)
		return
	}

	s.write(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: memInfo.RSS})
}

func (s *apiServer) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *apiServer) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, recorder.ErrRunNotFound) {
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
