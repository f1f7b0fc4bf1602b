package input

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Config controls device discovery and mouse pacing.
type Config struct {
	Disabled       bool          `help:"Do not read local input devices" env:"BTKVM_INPUT_DISABLED"`
	Devices        string        `help:"Glob of evdev nodes to scan" default:"/dev/input/event*" env:"BTKVM_INPUT_DEVICES"`
	Grab           bool          `help:"Grab devices exclusively so local consoles do not see the input" default:"true" negatable:"" env:"BTKVM_INPUT_GRAB"`
	RescanInterval time.Duration `help:"Interval between device scans" default:"5s" env:"BTKVM_INPUT_RESCAN_INTERVAL"`
	MouseRate      time.Duration `help:"Minimum interval between mouse reports unless a button changed" default:"20ms" env:"BTKVM_INPUT_MOUSE_RATE"`
	MouseSync      time.Duration `help:"Interval of synthetic mouse syncs" default:"1s" env:"BTKVM_INPUT_MOUSE_SYNC"`
}

// Kind classifies an input device.
type Kind int

const (
	Ignored Kind = iota
	KeyboardDevice
	MouseDevice
)

func (k Kind) String() string {
	switch k {
	case KeyboardDevice:
		return "keyboard"
	case MouseDevice:
		return "mouse"
	default:
		return "ignored"
	}
}

// Device is an opened input node.
type Device interface {
	Path() string
	Name() string
	Kind() Kind
	// Read blocks for the next batch of events.
	Read() ([]Event, error)
	Close() error
}

// Opener lists the paths of the currently present devices and opens those
// not in known.
type Opener interface {
	Open(known func(path string) bool) (present []string, opened []Device, err error)
}

// Source scans for devices and runs one reader per device.
type Source struct {
	cfg    Config
	opener Opener
	sink   Sink
	logger *slog.Logger
	mice   *Mice

	mu      sync.Mutex
	readers map[string]struct{}
	ignored map[string]struct{}
	wg      sync.WaitGroup
}

// NewSource creates a Source. Use NewEvdevOpener for real devices.
func NewSource(cfg Config, opener Opener, sink Sink, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = 5 * time.Second
	}
	if cfg.MouseSync <= 0 {
		cfg.MouseSync = time.Second
	}
	return &Source{
		cfg:     cfg,
		opener:  opener,
		sink:    sink,
		logger:  logger,
		mice:    NewMice(sink),
		readers: make(map[string]struct{}),
		ignored: make(map[string]struct{}),
	}
}

// Run scans until ctx is done, then waits for the readers to exit.
func (s *Source) Run(ctx context.Context) error {
	defer s.wg.Wait()
	t := time.NewTicker(s.cfg.RescanInterval)
	defer t.Stop()
	for {
		s.Scan(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Scan starts readers for devices that appeared since the last scan.
// Nodes that are neither keyboard nor mouse are remembered until they
// disappear so they are not reopened on every scan.
func (s *Source) Scan(ctx context.Context) {
	present, devs, err := s.opener.Open(s.known)
	if err != nil {
		s.logger.Warn("Input device scan failed", "error", err)
		return
	}
	s.pruneIgnored(present)
	for _, d := range devs {
		switch d.Kind() {
		case KeyboardDevice, MouseDevice:
		default:
			s.mu.Lock()
			s.ignored[d.Path()] = struct{}{}
			s.mu.Unlock()
			_ = d.Close()
			continue
		}
		s.mu.Lock()
		s.readers[d.Path()] = struct{}{}
		s.mu.Unlock()
		s.logger.Info("Input device found", "path", d.Path(), "name", d.Name(), "kind", d.Kind())
		s.wg.Add(1)
		go s.read(ctx, d)
	}
}

func (s *Source) known(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.readers[path]; ok {
		return true
	}
	_, ok := s.ignored[path]
	return ok
}

func (s *Source) pruneIgnored(present []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.ignored {
		if !slices.Contains(present, p) {
			delete(s.ignored, p)
		}
	}
}

// Devices returns the paths of the devices currently being read.
func (s *Source) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.readers))
	for p := range s.readers {
		out = append(out, p)
	}
	return out
}

func (s *Source) read(ctx context.Context, d Device) {
	defer s.wg.Done()
	logger := s.logger.With("device", d.Path())
	stop := context.AfterFunc(ctx, func() { _ = d.Close() })
	defer func() {
		stop()
		_ = d.Close()
		s.mu.Lock()
		delete(s.readers, d.Path())
		s.mu.Unlock()
	}()

	var handle func(Event)
	switch d.Kind() {
	case KeyboardDevice:
		handle = NewKeyboard(d.Path(), s.sink, logger).Handle
	case MouseDevice:
		m := NewMouse(d.Path(), s.mice, s.cfg.MouseRate, logger)
		handle = m.Handle
		defer s.mice.Forget(d.Path())
		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(s.cfg.MouseSync)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					m.Sync()
				}
			}
		}()
	}

	for {
		events, err := d.Read()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("Input device gone", "error", err)
			}
			return
		}
		for _, ev := range events {
			handle(ev)
		}
	}
}
