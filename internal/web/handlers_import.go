package web

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/source"
)

var (
	errNoFile        = errors.New("no file provided")
	errEmptyFile     = errors.New("empty file")
	errImportRunning = errors.New("import still running")
)

// upload is a received file spooled to disk. The import reads it after
// the request has ended.
type upload struct {
	file *os.File
	name string
	size int64
}

func (u *upload) close() error {
	return errors.Join(u.file.Close(), os.Remove(u.file.Name()))
}

// handleStartImport starts an import of the uploaded file into a domain.
// The file is sent as multipart field "file" or as the raw request body;
// the format query parameter selects csv (default) or xml.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	kind, err := core.ParseKind(cmp.Or(r.URL.Query().Get("format"), string(core.KindCSV)))
	if err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	up, err := receiveUpload(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id, err := s.service.StartImport(r.Context(), s.importRequest(dom, kind, up))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"import_id": id})
}

// importRequest wraps the upload into the record reader of kind.
func (s *Server) importRequest(dom string, kind core.Kind, up *upload) core.ImportRequest {
	req := core.ImportRequest{
		Domain:   dom,
		Format:   kind,
		FileName: up.name,
		Size:     up.size,
		Close:    up.close,
	}
	switch kind {
	case core.KindXML:
		xr := source.NewXMLReader(up.file, up.size)
		req.Records, req.BytesRead = xr, xr.BytesRead
	default:
		opts := source.CSVOptionsFrom(s.service.Importer().Config(), dom)
		cr := source.NewCSVReader(up.file, up.size, opts)
		req.Records, req.BytesRead = cr, cr.BytesRead
	}
	return req
}

// receiveUpload spools the file of a multipart or raw request body to a
// temporary file.
func receiveUpload(r *http.Request) (*upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return spool(r.Body, r.URL.Query().Get("name"))
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		up, err := spool(part, part.FileName())
		part.Close()
		return up, err
	}
}

func spool(src io.Reader, name string) (*upload, error) {
	f, err := os.CreateTemp("", "shopimport-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	up := &upload{file: f, name: name}

	n, err := io.Copy(f, src)
	if err == nil && n == 0 {
		err = errEmptyFile
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = up.close()
		return nil, fmt.Errorf("receive upload: %w", err)
	}
	up.size = n
	return up, nil
}

// handleListImports returns the progress of all tracked imports.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListImports())
}

// handleImportProgress returns the current progress of an import.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.GetImportProgress(chi.URLParam(r, "importID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{ImportProgress: progress, Percent: progress.Percent()})
}

type progressResponse struct {
	core.ImportProgress
	Percent int `json:"percent"`
}

// handleImportEvents streams progress via Server-Sent Events. The event id
// is the number of processed records; a reconnecting client sending
// Last-Event-ID (or lastEventId) skips updates it has already seen.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")

	lastEventID := -1
	if v := cmp.Or(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("lastEventId")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var last core.ImportProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				if final, err := s.service.GetImportProgress(id); err == nil {
					last = final
				}
				writeEvent(w, "complete", last.Processed, progressResponse{ImportProgress: last, Percent: last.Percent()})
				flusher.Flush()
				return
			}
			last = progress
			if progress.Processed <= lastEventID && !progress.Done() {
				continue
			}
			writeEvent(w, "progress", progress.Processed, progressResponse{ImportProgress: progress, Percent: progress.Percent()})
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, event string, id int, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
}

// handleImportResult returns the final result of an import. With
// wait=true the request blocks until the import ended; otherwise a running
// import answers 202 with its progress.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		progress, err := s.service.GetImportProgress(id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if !progress.Done() {
			writeJSON(w, http.StatusAccepted, progressResponse{ImportProgress: progress, Percent: progress.Percent()})
			return
		}
	}

	result, err := s.service.GetImportResult(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExportFailedRecords exports the failed records of a finished
// import as CSV.
func (s *Server) handleExportFailedRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")

	progress, err := s.service.GetImportProgress(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !progress.Done() {
		respondError(w, r, errImportRunning)
		return
	}
	result, err := s.service.GetImportResult(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="failed_%s.csv"`, id))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"line", "code", "reason"})
	for _, rec := range result.FailedRecords {
		_ = cw.Write([]string{strconv.Itoa(rec.Line), rec.Code, rec.Reason})
	}
	cw.Flush()
}

// handleCancelImport cancels a running import. Records already imported
// stay.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "importID")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
