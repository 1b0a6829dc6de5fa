package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/vad"
)

// ErrProviderNotRegistered means a providers entry names a backend no
// factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name table.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	byID map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, byID: make(map[string]Factory[T])}
}

func (f *factories[T]) add(name string, fn Factory[T]) {
	f.mu.Lock()
	f.byID[name] = fn
	f.mu.Unlock()
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.byID))
}

func (f *factories[T]) build(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.byID[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		known := "none"
		if n := f.names(); len(n) > 0 {
			known = strings.Join(n, ", ")
		}
		return zero, fmt.Errorf("%w: %s/%q (registered: %s)", ErrProviderNotRegistered, f.kind, entry.Name, known)
	}
	return fn(entry)
}

// Registry resolves provider names from the config file to constructors.
// A later registration under the same name replaces the earlier one.
type Registry struct {
	llm   *factories[llm.Provider]
	stt   *factories[stt.Provider]
	tts   *factories[tts.Provider]
	vad   *factories[vad.Engine]
	audio *factories[audio.Platform]
}

func NewRegistry() *Registry {
	return &Registry{
		llm:   newFactories[llm.Provider]("llm"),
		stt:   newFactories[stt.Provider]("stt"),
		tts:   newFactories[tts.Provider]("tts"),
		vad:   newFactories[vad.Engine]("vad"),
		audio: newFactories[audio.Platform]("audio"),
	}
}

func (r *Registry) RegisterLLM(name string, fn Factory[llm.Provider])     { r.llm.add(name, fn) }
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider])     { r.stt.add(name, fn) }
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider])     { r.tts.add(name, fn) }
func (r *Registry) RegisterVAD(name string, fn Factory[vad.Engine])       { r.vad.add(name, fn) }
func (r *Registry) RegisterAudio(name string, fn Factory[audio.Platform]) { r.audio.add(name, fn) }

func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error)     { return r.llm.build(e) }
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error)     { return r.stt.build(e) }
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error)     { return r.tts.build(e) }
func (r *Registry) CreateVAD(e ProviderEntry) (vad.Engine, error)       { return r.vad.build(e) }
func (r *Registry) CreateAudio(e ProviderEntry) (audio.Platform, error) { return r.audio.build(e) }

// Names lists the registered names for kind ("llm", "stt", "tts", "vad" or
// "audio"), sorted. Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	case "vad":
		return r.vad.names()
	case "audio":
		return r.audio.names()
	}
	return nil
}
