package admin

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ppadmin/auth"
	"github.com/hazyhaar/ppadmin/horosafe"
	"github.com/hazyhaar/ppadmin/kit"
	"github.com/hazyhaar/ppadmin/metricstore"
	"github.com/hazyhaar/ppadmin/shield"
	"github.com/hazyhaar/ppadmin/stagecraft"
	"github.com/hazyhaar/ppadmin/store"
	"github.com/hazyhaar/ppadmin/upload"
)

// Messages shown to the uploader besides the ingester's problems.
const (
	msgUploaded         = "Your data uploaded successfully"
	msgUnknownDataSet   = "Data set not found"
	msgDataSetLookup    = "Could not look up the data set"
	msgStoreUnavailable = "Could not send the data to the metrics store"
	msgBadRequest       = "Could not read the upload request"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type formData struct {
	Email    string
	DataSets []stagecraft.DataSet
	Flash    *shield.FlashMessage
	Error    string
	MaxBytes int64
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	logger := shield.GetLogger(r.Context())
	data := formData{
		Email:    kit.GetEmail(r.Context()),
		Flash:    shield.GetFlash(r.Context()),
		MaxBytes: s.ingester.MaxBytes(),
	}
	sets, err := s.datasets.DataSets(r.Context())
	if err != nil {
		logger.Error("admin: list data sets", "error", err)
		data.Error = "Could not load the list of data sets"
	}
	data.DataSets = sets

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "upload.html", data); err != nil {
		logger.Error("admin: render upload form", "error", err)
	}
}

// handleUpload ingests one file into a data set: look up the data set,
// validate and parse the file, send the records, record the attempt.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := shield.GetLogger(ctx)
	group, typ := chi.URLParam(r, "data_group"), chi.URLParam(r, "data_type")

	if horosafe.ValidateIdentifier(group) != nil || horosafe.ValidateIdentifier(typ) != nil {
		s.respondProblems(w, r, http.StatusNotFound, []string{msgUnknownDataSet})
		return
	}
	logger = logger.With("data_group", group, "data_type", typ)

	ds, err := s.datasets.DataSet(ctx, group, typ)
	if errors.Is(err, stagecraft.ErrNotFound) {
		s.respondProblems(w, r, http.StatusNotFound, []string{msgUnknownDataSet})
		return
	}
	if err != nil {
		logger.Error("admin: data set lookup", "error", err)
		s.respondProblems(w, r, http.StatusBadGateway, []string{msgDataSetLookup})
		return
	}

	f, cleanup, status, problem := s.readFile(r)
	defer cleanup()
	if problem != "" {
		s.finish(w, r, &store.Upload{DataGroup: group, DataType: typ, Filename: f.Filename,
			Status: statusName(status), Problems: []string{problem}}, status)
		return
	}

	out := s.ingester.ValidateAndParse(ctx, f)
	hist := &store.Upload{
		DataGroup: group,
		DataType:  typ,
		Filename:  f.Filename,
		Format:    string(out.Format),
		Status:    out.Status.String(),
		Problems:  out.Problems,
	}
	if !out.OK() {
		s.finish(w, r, hist, out.Status.HTTPStatus())
		return
	}

	if err := s.metrics.Post(ctx, group, typ, ds.BearerToken, out.Records); err != nil {
		var apiErr *metricstore.APIError
		if metricstore.IsUserError(err) && errors.As(err, &apiErr) {
			logger.Info("admin: metrics store rejected records", "error", err)
			hist.Status, hist.Problems = upload.StatusUserError.String(), apiErr.Problems()
			s.finish(w, r, hist, http.StatusBadRequest)
			return
		}
		logger.Error("admin: post records", "error", err)
		hist.Status, hist.Problems = upload.StatusSystemError.String(), []string{msgStoreUnavailable}
		s.finish(w, r, hist, http.StatusInternalServerError)
		return
	}

	hist.Records = len(out.Records)
	logger.Info("admin: upload stored", "records", hist.Records, "format", hist.Format)
	s.finish(w, r, hist, http.StatusOK)
}

// readFile extracts the "file" part. A missing part yields an empty File
// so that the ingester reports what is missing. problem is set when the
// request itself could not be read.
func (s *Server) readFile(r *http.Request) (f upload.File, cleanup func(), status int, problem string) {
	cleanup = func() {}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return f, cleanup, http.StatusBadRequest, upload.TooBig(s.ingester.MaxBytes())
		case errors.Is(err, http.ErrNotMultipart):
			return f, cleanup, http.StatusBadRequest, msgBadRequest
		default:
			shield.GetLogger(r.Context()).Warn("admin: parse multipart", "error", err)
			return f, cleanup, http.StatusBadRequest, msgBadRequest
		}
	}
	cleanup = func() { r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return upload.File{Body: strings.NewReader("")}, cleanup, 0, ""
	}
	if err != nil {
		return f, cleanup, http.StatusBadRequest, msgBadRequest
	}
	prev := cleanup
	cleanup = func() {
		file.Close()
		prev()
	}
	return fileOf(file, header), cleanup, 0, ""
}

func fileOf(file multipart.File, h *multipart.FileHeader) upload.File {
	return upload.File{
		Filename:    h.Filename,
		ContentType: h.Header.Get("Content-Type"),
		Size:        h.Size,
		Body:        file,
	}
}

// finish records the attempt and answers the client.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, hist *store.Upload, status int) {
	ctx := r.Context()
	hist.UserID = kit.GetUserID(ctx)
	hist.RequestID = kit.GetRequestID(ctx)
	if hist.Status == "" {
		hist.Status = statusName(status)
	}
	if err := s.store.Record(ctx, hist); err != nil {
		shield.GetLogger(ctx).Error("admin: record upload history", "error", err)
	}

	if status == http.StatusOK {
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":  "ok",
				"id":      hist.ID,
				"format":  hist.Format,
				"records": hist.Records,
			})
			return
		}
		shield.SetFlash(w, "success", msgUploaded)
		http.Redirect(w, r, "/upload-data", http.StatusSeeOther)
		return
	}
	s.respondProblems(w, r, status, hist.Problems)
}

func (s *Server) respondProblems(w http.ResponseWriter, r *http.Request, status int, problems []string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]any{"status": "error", "problems": problems})
		return
	}
	shield.SetFlashList(w, "error", problems)
	http.Redirect(w, r, "/upload-data", http.StatusSeeOther)
}

func statusName(code int) string {
	switch {
	case code < 400:
		return upload.StatusOK.String()
	case code < 500:
		return upload.StatusUserError.String()
	default:
		return upload.StatusSystemError.String()
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	group, typ := q.Get("data_group"), q.Get("data_type")

	var (
		uploads []store.Upload
		err     error
	)
	if group != "" && typ != "" {
		uploads, err = s.store.ForDataSet(ctx, group, typ, limit)
	} else {
		uploads, err = s.store.Recent(ctx, limit)
	}
	if err != nil {
		shield.GetLogger(ctx).Error("admin: read upload history", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "could not read upload history"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

// wantsJSON reports whether the client asked for a JSON answer.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func splitLines(s string) []string { return strings.Split(s, "\n") }

// signedIn is used by the login handler to skip a round trip.
func signedIn(r *http.Request) bool {
	c := auth.GetClaims(r.Context())
	return c != nil && c.HasPermission(auth.PermissionSignin)
}
