package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// InstructionSource supplies the current default instruction text. When
// backed by a file it reloads on change; new sessions pick up the new
// text, existing sessions keep theirs.
type InstructionSource struct {
	current  atomic.Value // string
	path     string
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewStaticInstruction returns a source with fixed text.
func NewStaticInstruction(text string) *InstructionSource {
	s := &InstructionSource{}
	s.current.Store(text)
	return s
}

// NewFileInstruction returns a source backed by a file, watching it for
// changes. The fallback text is used when the file cannot be read.
func NewFileInstruction(path, fallback string, logger zerolog.Logger) (*InstructionSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	s := &InstructionSource{
		path:     path,
		watcher:  watcher,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
	s.current.Store(fallback)
	s.reload()

	// Watch the directory: editors often replace the file wholesale.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go s.run()
	return s, nil
}

// Get returns the current instruction text.
func (s *InstructionSource) Get() string {
	return s.current.Load().(string)
}

// Stop halts the file watcher. No-op for a static source.
func (s *InstructionSource) Stop() {
	if s.watcher == nil {
		return
	}
	close(s.stopCh)
	s.watcher.Close()
}

func (s *InstructionSource) run() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				s.scheduleReload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("Instruction watcher error")
		case <-s.stopCh:
			return
		}
	}
}

func (s *InstructionSource) scheduleReload() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.reload)
}

func (s *InstructionSource) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", s.path).Msg("Instruction file unreadable, keeping previous text")
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		s.logger.Warn().Str("file", s.path).Msg("Instruction file empty, keeping previous text")
		return
	}
	s.current.Store(text)
	s.logger.Info().Str("file", s.path).Msg("Instruction text loaded")
}
