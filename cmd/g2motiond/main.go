// Command g2motiond is a demo host for the motion core: it opens a
// serial port, reads newline-delimited G-code-like commands (G0/G1 with
// X/Y/Z/A/B/C/F words, G4 P<seconds>, M0/M1/M2, ! and ~ for feedhold),
// and drives a runtime.Controller against them. It exists to exercise
// the whole pipeline end to end, the way the teacher's cmd/monitor and
// cmd/cr30 commands exercise their own cores against a real serial link.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"github.com/synthetos/g2motion/motion"
	"github.com/synthetos/g2motion/motion/config"
	"github.com/synthetos/g2motion/motion/hal"
	"github.com/synthetos/g2motion/motion/kinematics"
	"github.com/synthetos/g2motion/motion/obs"
	"github.com/synthetos/g2motion/motion/runtime"
)

var (
	portName    = flag.String("port", "", "Serial port device (e.g., /dev/ttyUSB0 or COM3); empty runs against stdin")
	baudRate    = flag.Int("baud", 115200, "Serial port baud rate")
	ddaHz       = flag.Float64("dda-freq", 50000, "Simulated DDA timer frequency, Hz")
	loopHz      = flag.Float64("loop-freq", 1000, "Main-loop (LOW tier) poll frequency, Hz")
	logLevel    = flag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	reportEvery = flag.Duration("report", 5*time.Second, "Counter reporting interval")
	configPath  = flag.String("config", "", "Path to a YAML settings file (tokens per motion/config.Load); empty uses built-in defaults")
)

func main() {
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := obs.New(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rc, err := newRuntime(log)
	if err != nil {
		log.Fatal().Err(err).Msg("g2motiond: failed to build runtime")
	}

	input, closeInput, err := openInput(log)
	if err != nil {
		log.Fatal().Err(err).Msg("g2motiond: failed to open input")
	}
	defer closeInput()

	runLoop(ctx, log, rc, input)
}

// newRuntime assembles a runtime.Controller over a loop-back HAL: no real
// pins attached, so every step/dir/enable call is a no-op and the DDA's
// own tick-accounting is the only thing moving segments forward. A real
// board build supplies a hal.HAL wired to actual GPIO/timer drivers.
func newRuntime(log zerolog.Logger) (*runtime.Controller, error) {
	settings := config.Default()
	for i := range settings.Axis {
		settings.Axis[i] = config.AxisSettings{
			VelocityMax: 6000, // mm/min
			FeedrateMax: 6000, // mm/min
			JerkMax:     50,   // ×10^6 mm/min^3; the planner scales by JerkMultiplier
			JunctionDev: 0.05,
		}
	}

	if *configPath != "" {
		doc, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		provider, err := config.NewYAMLProvider(doc)
		if err != nil {
			return nil, err
		}
		settings, err = config.Load(provider)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", *configPath).Msg("g2motiond: settings loaded")
	}

	var stepsPerUnit [motion.Motors]float32
	for i := range stepsPerUnit {
		stepsPerUnit[i] = 200 // 1.8deg steppers, no microstepping, 1 unit/rev leadscrew
	}

	h := &hal.HAL{
		Timer:   noopTimer{},
		Step:    noopStepPin{},
		Dir:     noopDirPin{},
		Enable:  noopEnablePin{},
		Encoder: hal.NullEncoder{},
	}

	return runtime.New(runtime.Config{
		Settings:     settings,
		Kinematics:   kinematics.Cartesian{},
		HAL:          h,
		DDAFrequency: float32(*ddaHz),
		SubstepScale: 1,
		StepsPerUnit: stepsPerUnit,
		Log:          log,
	}), nil
}

// runLoop drives the three-tier schedule: a HIGH-tier ticker calling
// HighPriorityTick at the DDA frequency, and a LOW-tier ticker calling
// RunOnce (which itself drains MEDIUM-tier work) at loopHz, plus a
// goroutine turning serial input into admitted buffers.
func runLoop(ctx context.Context, log zerolog.Logger, rc *runtime.Controller, input *bufio.Scanner) {
	ddaPeriod := time.Duration(float64(time.Second) / *ddaHz)
	loopPeriod := time.Duration(float64(time.Second) / *loopHz)

	ddaTicker := time.NewTicker(ddaPeriod)
	defer ddaTicker.Stop()
	loopTicker := time.NewTicker(loopPeriod)
	defer loopTicker.Stop()
	reportTicker := time.NewTicker(*reportEvery)
	defer reportTicker.Stop()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	var position motion.GCodeState

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("g2motiond: shutting down")
			return
		case <-ddaTicker.C:
			rc.HighPriorityTick()
		case <-loopTicker.C:
			rc.RunOnce(time.Now())
		case <-reportTicker.C:
			obs.Report(log, &rc.Counters)
		case line, ok := <-lines:
			if !ok {
				log.Info().Msg("g2motiond: input closed")
				return
			}
			handleLine(log, rc, &position, line)
		}
	}
}

// handleLine parses one command line and admits it into the pipeline.
// This is a deliberately minimal G-code subset, not a conformant parser:
// the motion core is the thing under test here, not the language front
// end spec.md's Non-goals already exclude.
func handleLine(log zerolog.Logger, rc *runtime.Controller, gc *motion.GCodeState, line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return
	case line == "!":
		rc.RequestHold()
		return
	case line == "~":
		rc.RequestResume()
		return
	case line == "%":
		rc.RequestQueueFlush()
		return
	}

	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "G0", "G1":
		for _, w := range fields[1:] {
			axis, ok := axisIndex(w[0])
			if !ok {
				if w[0] == 'F' {
					if v, err := strconv.ParseFloat(w[1:], 32); err == nil {
						gc.Feedrate = float32(v)
					}
				}
				continue
			}
			if v, err := strconv.ParseFloat(w[1:], 32); err == nil {
				gc.Target[axis] = float32(v)
			}
		}
		if _, err := rc.ALine(*gc); err != nil {
			log.Warn().Err(err).Str("line", line).Msg("g2motiond: move rejected")
		}
	case "G4":
		for _, w := range fields[1:] {
			if w[0] != 'P' {
				continue
			}
			if v, err := strconv.ParseFloat(w[1:], 32); err == nil {
				if _, err := rc.Dwell(float32(v)); err != nil {
					log.Warn().Err(err).Msg("g2motiond: dwell rejected")
				}
			}
		}
	case "M0", "M1":
		rc.RequestHold()
	case "M2", "M30":
		rc.RequestQueueFlush()
	default:
		log.Debug().Str("line", line).Msg("g2motiond: unrecognized command, ignored")
	}
}

func axisIndex(letter byte) (int, bool) {
	switch letter {
	case 'X':
		return 0, true
	case 'Y':
		return 1, true
	case 'Z':
		return 2, true
	case 'A':
		return 3, true
	case 'B':
		return 4, true
	case 'C':
		return 5, true
	default:
		return 0, false
	}
}

// openInput opens the configured serial port, or falls back to stdin if
// none was given, so the demo can be driven without real hardware.
func openInput(log zerolog.Logger) (*bufio.Scanner, func(), error) {
	if *portName == "" {
		log.Info().Msg("g2motiond: no -port given, reading commands from stdin")
		return bufio.NewScanner(os.Stdin), func() {}, nil
	}

	cfg := &serial.Config{Name: *portName, Baud: *baudRate, ReadTimeout: time.Second}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("g2motiond: open %s: %w", *portName, err)
	}
	log.Info().Str("port", *portName).Int("baud", *baudRate).Msg("g2motiond: serial port open")
	return bufio.NewScanner(port), func() { port.Close() }, nil
}

type noopTimer struct{}

func (noopTimer) SetPeriodAndEnable(hal.TimerID, uint32) {}
func (noopTimer) Disable(hal.TimerID)                    {}

type noopStepPin struct{}

func (noopStepPin) Pulse(int) {}

type noopDirPin struct{}

func (noopDirPin) SetDir(int, bool) {}

type noopEnablePin struct{}

func (noopEnablePin) SetEnable(int, bool) {}
