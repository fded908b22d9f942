package web

import (
	"cmp"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/shopimport/internal/core"
)

// handleListProcessors returns the short names of the registered
// processors per format.
func (s *Server) handleListProcessors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[core.Kind][]string{
		core.KindCSV: core.Names(core.KindCSV),
		core.KindXML: core.Names(core.KindXML),
	})
}

type chainResponse struct {
	Domain     string    `json:"domain"`
	Format     core.Kind `json:"format"`
	Processors []string  `json:"processors,omitempty"`
	Valid      bool      `json:"valid"`
}

// handleValidateChain builds the configured processors of a domain
// without importing anything. Configuration errors answer 400.
func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	kind, err := core.ParseKind(cmp.Or(r.URL.Query().Get("format"), string(core.KindCSV)))
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.service.Importer().Validate(dom, kind); err != nil {
		respondError(w, r, err)
		return
	}

	resp := chainResponse{Domain: dom, Format: kind, Valid: true}
	if kind == core.KindCSV {
		resp.Processors = core.ChainNames(s.service.Importer().Config(), dom)
	}
	writeJSON(w, http.StatusOK, resp)
}
