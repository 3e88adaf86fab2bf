// Package gojaview hosts the editor surface inside an embedded
// JavaScript runtime. The script keeps the document model and answers
// the host's invocations; everything it emits comes back through a
// single message callback, mirroring how a webview bridge behaves.
package gojaview

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dop251/goja"
)

//go:embed editor.js
var editorScript string

// View runs the editor script on a dedicated goroutine; goja runtimes
// are not safe for concurrent use, so every evaluation is funneled
// through the op channel.
type View struct {
	rt     *goja.Runtime
	ops    chan func()
	done   chan struct{}
	logger *slog.Logger

	mu        sync.Mutex
	onMessage func([]byte)
	closed    bool
}

// New boots the runtime and loads the editor script.
func New(logger *slog.Logger) (*View, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := &View{
		rt:     goja.New(),
		ops:    make(chan func(), 64),
		done:   make(chan struct{}),
		logger: logger,
	}

	if err := v.rt.Set("__postMessage", func(raw string) {
		v.mu.Lock()
		handler := v.onMessage
		v.mu.Unlock()
		if handler != nil {
			handler([]byte(raw))
		}
	}); err != nil {
		return nil, fmt.Errorf("bind __postMessage: %w", err)
	}

	if _, err := v.rt.RunString(editorScript); err != nil {
		return nil, fmt.Errorf("load editor script: %w", err)
	}

	go v.loop()
	return v, nil
}

func (v *View) loop() {
	for {
		select {
		case op := <-v.ops:
			op()
		case <-v.done:
			return
		}
	}
}

// OnMessage installs the handler for messages the surface emits.
// Messages produced while no handler is installed are dropped.
func (v *View) OnMessage(fn func([]byte)) {
	v.mu.Lock()
	v.onMessage = fn
	v.mu.Unlock()
}

// Execute evaluates a script on the runtime goroutine and waits for it.
func (v *View) Execute(script string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return fmt.Errorf("editor surface closed")
	}
	v.mu.Unlock()

	errc := make(chan error, 1)
	select {
	case v.ops <- func() {
		_, err := v.rt.RunString(script)
		errc <- err
	}:
	case <-v.done:
		return fmt.Errorf("editor surface closed")
	}

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("editor script: %w", err)
		}
		return nil
	case <-v.done:
		return fmt.Errorf("editor surface closed")
	}
}

// Close stops the runtime goroutine. Pending Execute calls fail.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	close(v.done)
}
