package business

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/entities"
	"github.com/Benedict-CS/line-backup-bot/pkg/jsonfile"
)

// Router maps conversations to destination folders.
// The mapping is replaced as a whole and read lock-free. Per-conversation
// selections sit behind their own lock and are persisted on every change.
type Router struct {
	mapping atomic.Pointer[entities.Mapping]
	// updateMu serializes mapping replacement so file and memory stay in step
	updateMu sync.Mutex

	stateMu sync.RWMutex
	state   map[string]string

	mapFile   string
	stateFile string
	logger    zerolog.Logger
}

// NewRouter loads the mapping from mapFile, falling back to staticMap, and
// restores conversation selections from stateFile. Empty paths disable persistence.
func NewRouter(mapFile, staticMap, stateFile string, logger zerolog.Logger) *Router {
	r := &Router{
		state:     make(map[string]string),
		mapFile:   mapFile,
		stateFile: stateFile,
		logger:    logger,
	}

	mapping := r.loadMapping(staticMap)
	r.mapping.Store(&mapping)
	r.loadState()

	return r
}

func (r *Router) loadMapping(staticMap string) entities.Mapping {
	if r.mapFile != "" {
		var raw map[string]string
		ok, err := jsonfile.Read(r.mapFile, &raw)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", r.mapFile).Msg("Could not load source map file")
		} else if ok {
			mapping := make(entities.Mapping, len(raw))
			for k, v := range raw {
				k, v = strings.TrimSpace(k), strings.TrimSpace(v)
				if k != "" && v != "" {
					mapping[k] = entities.SafeFolderName(v)
				}
			}
			r.logger.Info().Str("file", r.mapFile).Int("entries", len(mapping)).Msg("Loaded source map")
			return mapping
		}
	}

	mapping := entities.ParseStaticMapping(staticMap)
	if len(mapping) > 0 {
		r.logger.Info().Int("entries", len(mapping)).Msg("Loaded source map from SOURCE_MAP")
	}
	return mapping
}

func (r *Router) loadState() {
	if r.stateFile == "" {
		return
	}
	var state map[string]string
	ok, err := jsonfile.Read(r.stateFile, &state)
	if err != nil {
		r.logger.Warn().Err(err).Str("file", r.stateFile).Msg("Could not load source state")
		return
	}
	if !ok {
		return
	}
	for conv, folder := range state {
		r.state[conv] = folder
	}
	r.logger.Info().Str("file", r.stateFile).Int("entries", len(state)).Msg("Loaded source state")
}

// Mapping returns a copy of the current mapping
func (r *Router) Mapping() entities.Mapping {
	return r.mapping.Load().Clone()
}

func (r *Router) otherFolder() string {
	if folder, ok := (*r.mapping.Load())[entities.OtherKey]; ok {
		return folder
	}
	return entities.OtherFolder
}

// Resolve returns the folder currently selected by the conversation
func (r *Router) Resolve(conversationID string) string {
	r.stateMu.RLock()
	folder, ok := r.state[conversationID]
	r.stateMu.RUnlock()

	if !ok || folder == "" {
		return r.otherFolder()
	}
	return folder
}

// OnSelectorText consumes digit strings, "0" and "other" as folder selectors.
// It returns false for any other text, which the caller classifies further.
func (r *Router) OnSelectorText(conversationID, text string) bool {
	folder, ok := r.selectorFolder(strings.TrimSpace(text))
	if !ok {
		return false
	}
	r.selectFolder(conversationID, folder)
	return true
}

func (r *Router) selectorFolder(text string) (string, bool) {
	if text == "0" || strings.EqualFold(text, entities.OtherKey) {
		return r.otherFolder(), true
	}
	if !entities.IsDigits(text) {
		return "", false
	}
	if folder, ok := (*r.mapping.Load())[text]; ok {
		return folder, true
	}
	return r.otherFolder(), true
}

func (r *Router) selectFolder(conversationID, folder string) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.state[conversationID] == folder {
		return
	}
	r.state[conversationID] = folder

	r.logger.Info().
		Str("conversation", conversationID).
		Str("folder", folder).
		Msg("Source folder selected")

	if r.stateFile == "" {
		return
	}
	if err := jsonfile.WriteAtomic(r.stateFile, r.state); err != nil {
		r.logger.Warn().Err(err).Str("file", r.stateFile).Msg("Could not save source state")
	}
}

// UpdateMapping validates, persists and then swaps in a new mapping.
// Readers see either the old or the new mapping, never a mix.
func (r *Router) UpdateMapping(in map[string]string) (entities.Mapping, error) {
	mapping, err := entities.ValidateMapping(in)
	if err != nil {
		return nil, err
	}

	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	if r.mapFile != "" {
		if err := jsonfile.WriteAtomic(r.mapFile, mapping); err != nil {
			return nil, fmt.Errorf("persist source map: %w", err)
		}
	}

	r.mapping.Store(&mapping)

	r.logger.Info().
		Int("entries", len(mapping)).
		Str("mapping", mapping.String()).
		Msg("Source map updated")

	return mapping.Clone(), nil
}

// Selections returns the number of conversations with an explicit selection
func (r *Router) Selections() int {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return len(r.state)
}
