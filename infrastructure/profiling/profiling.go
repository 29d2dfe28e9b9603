// Package profiling starts the optional pprof listener and Pyroscope agent.
package profiling

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
)

// Config selects which profilers run.
type Config struct {
	PprofEnabled     bool   `env:"ENABLE_PROFILING"            yaml:"pprof_enabled"`
	PprofAddress     string `env:"PPROF_ADDRESS"               yaml:"pprof_address"`
	PyroscopeEnabled bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope_enabled"`
	PyroscopeServer  string `env:"PYROSCOPE_SERVER_URL"        yaml:"pyroscope_server"`
	Environment      string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
}

const (
	defaultPprofAddress    = "localhost:6060"
	defaultPyroscopeServer = "http://pyroscope:4040"
	pprofReadHeaderTimeout = 5 * time.Second
)

// Profiler stops whatever Start launched.
type Profiler struct {
	pyro  *pyroscope.Profiler
	pprof *http.Server
}

// Start launches the enabled profilers. Disabled profilers are skipped silently.
func Start(serviceName, version string, cfg Config, log logger.Logger) (*Profiler, error) {
	p := &Profiler{}

	if cfg.PprofEnabled {
		p.pprof = startPprof(cfg.PprofAddress, log)
	}

	if cfg.PyroscopeEnabled {
		server := cfg.PyroscopeServer
		if server == "" {
			server = defaultPyroscopeServer
		}
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}

		pyro, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "north-cloud." + serviceName,
			ServerAddress:   server,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
			Tags: map[string]string{
				"environment": cfg.Environment,
				"version":     version,
				"hostname":    hostname,
				"go_version":  runtime.Version(),
			},
		})
		if err != nil {
			return p, fmt.Errorf("start pyroscope: %w", err)
		}
		p.pyro = pyro
		log.Info("Pyroscope profiling started", logger.String("server", server))
	}

	return p, nil
}

// Stop shuts down the profilers.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.pprof != nil {
		errs = append(errs, p.pprof.Close())
	}
	if p.pyro != nil {
		errs = append(errs, p.pyro.Stop())
	}
	return errors.Join(errs...)
}

func startPprof(addr string, log logger.Logger) *http.Server {
	if addr == "" {
		addr = defaultPprofAddress
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: pprofReadHeaderTimeout}
	go func() {
		log.Info("Starting pprof server", logger.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", logger.Error(err))
		}
	}()
	return srv
}
