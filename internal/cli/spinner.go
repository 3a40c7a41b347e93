package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/atlaspack/pkg/observability"
)

// Spinner provides a simple progress indicator with context cancellation support.
// Its message can change while it spins, so a long build can report the
// stage it is in.
type Spinner struct {
	out     io.Writer
	message string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	frames  []string
	width   int
	mu      sync.Mutex
}

// newSpinner creates a new spinner with the given message.
func newSpinner(message string) *Spinner {
	return newSpinnerWithContext(context.Background(), message)
}

// newSpinnerWithContext creates a spinner that will stop when the context is cancelled.
func newSpinnerWithContext(ctx context.Context, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		out:     os.Stderr,
		message: message,
		ctx:     spinnerCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-s.done:
				return
			case <-ticker.C:
				frame := s.frames[i%len(s.frames)]
				s.mu.Lock()
				line := fmt.Sprintf("%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message))
				pad := max(s.width-len(s.message), 0)
				fmt.Fprintf(s.out, "\r%s%s", line, strings.Repeat(" ", pad))
				s.width = len(s.message)
				s.mu.Unlock()
				i++
			}
		}
	}()
}

// SetMessage replaces the text shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.cancel()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.stopped
	s.clearLine()
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := max(len(s.message), s.width) + 4
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", n))
}

// StopWithSuccess stops the spinner and shows a success message.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	printSuccess("%s", message)
}

// StopWithError stops the spinner and shows an error message.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	printError("%s", message)
}

// Cancelled returns true if the spinner was stopped due to context cancellation.
func (s *Spinner) Cancelled() bool {
	return s.ctx.Err() != nil
}

// =============================================================================
// Build progress
// =============================================================================

// spinnerHooks narrates build stages on a spinner.
type spinnerHooks struct {
	observability.NoopBuildHooks
	spinner *Spinner

	mu         sync.Mutex
	layers     int
	layersDone int
}

func newSpinnerHooks(s *Spinner) *spinnerHooks {
	return &spinnerHooks{spinner: s}
}

func (h *spinnerHooks) OnScanStart(_ context.Context, root string) {
	h.spinner.SetMessage(fmt.Sprintf("Scanning %s...", root))
}

func (h *spinnerHooks) OnMetadataStart(_ context.Context, assets int) {
	h.spinner.SetMessage(fmt.Sprintf("Reading %d image sizes...", assets))
}

func (h *spinnerHooks) OnPackStart(_ context.Context, sprites int) {
	h.spinner.SetMessage(fmt.Sprintf("Packing %d sprites...", sprites))
}

func (h *spinnerHooks) OnPackComplete(_ context.Context, layers int, _ time.Duration, err error) {
	if err != nil {
		return
	}
	h.mu.Lock()
	h.layers = layers
	h.mu.Unlock()
	h.spinner.SetMessage(fmt.Sprintf("Compositing %d layers...", layers))
}

func (h *spinnerHooks) OnLayerComplete(_ context.Context, _ int, _ time.Duration, err error) {
	if err != nil {
		return
	}
	h.mu.Lock()
	h.layersDone++
	msg := fmt.Sprintf("Compositing layers (%d/%d)...", h.layersDone, h.layers)
	h.mu.Unlock()
	h.spinner.SetMessage(msg)
}

func (h *spinnerHooks) OnDescriptorWritten(_ context.Context, path string, _ int, _ error) {
	h.spinner.SetMessage(fmt.Sprintf("Writing %s...", path))
}
