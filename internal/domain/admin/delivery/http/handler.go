package http

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Benedict-CS/line-backup-bot/internal/domain"
	"github.com/Benedict-CS/line-backup-bot/internal/domain/source/entities"
	pkgerrors "github.com/Benedict-CS/line-backup-bot/pkg/errors"
	"github.com/Benedict-CS/line-backup-bot/pkg/httputil"
)

// MappingStore reads and replaces the source mapping
type MappingStore interface {
	Mapping() entities.Mapping
	UpdateMapping(in map[string]string) (entities.Mapping, error)
}

// MappingHandler serves the source mapping admin endpoints
type MappingHandler struct {
	store  MappingStore
	mapper *pkgerrors.Mapper
	logger zerolog.Logger
}

// NewMappingHandler creates a new mapping handler
func NewMappingHandler(store MappingStore, logger zerolog.Logger) *MappingHandler {
	return &MappingHandler{
		store:  store,
		mapper: pkgerrors.NewMapper(logger),
		logger: logger,
	}
}

// GetMapping returns the current mapping
func (h *MappingHandler) GetMapping(ctx *fasthttp.RequestCtx) {
	httputil.WriteResponse(ctx, h.store.Mapping())
}

// PutMapping replaces the mapping with the request body
func (h *MappingHandler) PutMapping(ctx *fasthttp.RequestCtx) {
	var in map[string]string
	if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
		h.mapper.Write(ctx, pkgerrors.NewValidationErrorf("%v: body must be a JSON object of strings", domain.ErrInvalidMapping), httputil.WriteErrorResponse)
		return
	}

	mapping, err := h.store.UpdateMapping(in)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Source mapping update rejected")
		h.mapper.Write(ctx, err, httputil.WriteErrorResponse)
		return
	}

	httputil.WriteResponse(ctx, mapping)
}
