// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/cmd"
	"github.com/mandersson1024/intonation-toy-sub002/internal/analysis"
	"github.com/mandersson1024/intonation-toy-sub002/internal/audio"
	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ingest"
	applog "github.com/mandersson1024/intonation-toy-sub002/internal/log"
	"github.com/mandersson1024/intonation-toy-sub002/internal/monitor"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ring"
	"github.com/mandersson1024/intonation-toy-sub002/internal/transport/udp"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
	"github.com/mandersson1024/intonation-toy-sub002/pkg/build"
)

// latestResults holds the most recent analysis outputs for the
// observability fan-out. Volume updates arrive per quantum from the
// ingest goroutine; pitch updates arrive per filled analysis window.
type latestResults struct {
	mu     sync.Mutex
	volume analysis.VolumeMeasurement
	pitch  analysis.PitchResult
}

func (r *latestResults) setVolume(v analysis.VolumeMeasurement) {
	r.mu.Lock()
	r.volume = v
	r.mu.Unlock()
}

func (r *latestResults) setPitch(p analysis.PitchResult) {
	r.mu.Lock()
	r.pitch = p
	r.mu.Unlock()
}

func (r *latestResults) snapshot() (analysis.VolumeMeasurement, analysis.PitchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume, r.pitch
}

// main is the entry point for the capture pipeline.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Initialize PortAudio
//   - Parse command line arguments and config file
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the capture engine and its real-time callback
//   - Drain transferred batches into the analysis ring
//   - Run volume and pitch analysis
//   - Fan results out over WebSocket and UDP
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop publishers, ingest, and the engine
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for ingest, analysis, and I/O
	runtime.GOMAXPROCS(2)

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg.Verbose {
		applog.SetLevel(applog.LevelDebug)
	}

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	// One-off commands that don't require the engine
	if cfg.Command == "list" {
		if err := audio.ListDevices(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		applog.Fatalf("invalid configuration: %v", err)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	// Event capacity covers every pool slot in flight at once plus
	// lifecycle events; control stays small.
	ch := wire.NewChannel(cfg.PoolSize*2+8, 32)

	engine, err := audio.NewEngine(cfg, ch)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	results := &latestResults{pitch: analysis.PitchResult{Frequency: analysis.NoPitch}}

	pitch, err := analysis.NewPitchDetector(cfg.AnalysisWindow, cfg.SampleRate, analysis.WindowHamming)
	if err != nil {
		applog.Fatalf("%v", err)
	}

	// The ring fires on every completed analysis window; the pitch
	// detector runs inline on the ingest goroutine. The closure captures
	// rb and coordinator, both assigned before ingest starts.
	var (
		coordinator *ingest.Coordinator
		rb          *ring.Buffer
		window      = make([]float32, cfg.AnalysisWindow)
	)
	rb, err = ring.New(cfg.RingCapacity, cfg.AnalysisWindow, func() {
		if n := rb.ReadLatest(window); n == len(window) {
			results.setPitch(pitch.Detect(window, coordinator.VolumeConfidence()))
		}
	})
	if err != nil {
		applog.Fatalf("%v", err)
	}

	coordinator = ingest.New(ch, rb, config.MaxBatchSize,
		func(v analysis.VolumeMeasurement) { results.setVolume(v) },
		func(m wire.Message) { applog.Debugf("Event: %s", m.Kind()) },
	)

	if err := engine.Start(); err != nil {
		applog.Fatalf("%v", err)
	}

	coordinator.Start()

	if cfg.Record {
		if err := engine.StartRecording(cfg.OutputFile); err != nil {
			applog.Fatalf("%v", err)
		}
	}

	var mon *monitor.Server
	broadcastQuit := make(chan struct{})
	if cfg.MonitorEnabled {
		mon = monitor.NewServer(cfg.MonitorPort)
		go broadcastLoop(mon, results, engine, ch, rb, coordinator, broadcastQuit)
	}

	var publisher *udp.Publisher
	if cfg.UDPEnabled {
		publisher, err = udp.NewPublisher(cfg.UDPTarget, cfg.UDPInterval, results.snapshot)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		publisher.Start()
	}

	// Begin forwarding batches from the callback.
	ch.SendControl(wire.StartProcessing{})

	fmt.Printf("%s %s running. Ctrl-C to stop.\n",
		build.GetBuildFlags().Name, build.GetBuildFlags().Version)

	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	ch.SendControl(wire.StopProcessing{})
	time.Sleep(100 * time.Millisecond) // Let the final partial batch drain.

	close(broadcastQuit)

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			applog.Errorf("Error stopping UDP publisher: %v", err)
		}
	}
	if mon != nil {
		if err := mon.Close(); err != nil {
			applog.Errorf("Error closing monitor: %v", err)
		}
	}
	coordinator.Stop()

	if cfg.Record {
		if err := engine.StopRecording(); err != nil {
			applog.Errorf("Error stopping recording: %v", err)
		}
		fmt.Printf("\nRecording saved to: %s\n", cfg.OutputFile)
	}

	if err := engine.Close(); err != nil {
		applog.Errorf("Error closing audio engine: %v", err)
	}
}

// broadcastLoop pushes a stats frame to WebSocket clients at a fixed
// cadence until quit is closed. The cadence clears the monitor's rate
// limit, so every frame pushed here reaches the clients.
func broadcastLoop(mon *monitor.Server, results *latestResults, engine *audio.Engine,
	ch *wire.Channel, rb *ring.Buffer, coordinator *ingest.Coordinator, quit chan struct{}) {
	ticker := time.NewTicker(monitor.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vol, pitch := results.snapshot()
			mon.Broadcast(monitor.Frame{
				Timestamp: time.Now().UnixNano(),
				Volume:    vol,
				Pitch:     pitch,
				Pool:      engine.Pool().Stats(),
				Channel:   ch.Stats(),
				Ring:      rb.Stats(),
				Ingest:    coordinator.Stats(),
			})
		case <-quit:
			return
		}
	}
}
