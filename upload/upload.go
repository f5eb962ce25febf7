// CLAUDE:SUMMARY Upload orchestrator: structural checks, scoped temp copy, security scan, parse, problem classification.
// Package upload validates an uploaded spreadsheet and turns it into
// records, or into a list of problems tagged as the caller's fault or ours.
//
// Pipeline: structural checks → temp copy → security scan → parse. Every
// stage short-circuits on failure and the temp copy is always removed.
// There is no partial success: records are returned only when no problem
// was found.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/ppadmin/horosafe"
	"github.com/hazyhaar/ppadmin/idgen"
	"github.com/hazyhaar/ppadmin/kit"
	"github.com/hazyhaar/ppadmin/spreadsheet"
)

// Problem messages shown to the uploader.
const (
	ProblemNoName        = "File has no name"
	ProblemEmpty         = "File is empty"
	ProblemVirus         = "File contains a virus"
	ProblemSecurity      = "File failed security checks"
	ProblemScanFailed    = "Virus scan failed"
	ProblemParseFailed   = "Could not read the file"
	ProblemStorageFailed = "Could not store the file for processing"
)

// Status classifies an Outcome for the transport layer.
type Status int

const (
	StatusOK Status = iota
	// StatusUserError: the upload itself is at fault.
	StatusUserError
	// StatusSystemError: the upload could not be processed on our side.
	StatusSystemError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUserError:
		return "user_error"
	default:
		return "system_error"
	}
}

// HTTPStatus maps the status to a response code.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusOK:
		return http.StatusOK
	case StatusUserError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// File is an uploaded file as handed over by the multipart layer.
type File struct {
	Filename    string
	ContentType string
	// Size is the declared size. The body is re-measured while copying.
	Size int64
	Body io.Reader
}

// Outcome is the result of ValidateAndParse.
type Outcome struct {
	Records  []spreadsheet.Record `json:"records,omitempty"`
	Format   spreadsheet.Format   `json:"format,omitempty"`
	Problems []string             `json:"problems,omitempty"`
	Status   Status               `json:"-"`
}

// OK reports whether the upload produced records.
func (o *Outcome) OK() bool { return o.Status == StatusOK }

func userError(problems ...string) *Outcome {
	return &Outcome{Problems: problems, Status: StatusUserError}
}

func systemError(problem string) *Outcome {
	return &Outcome{Problems: []string{problem}, Status: StatusSystemError}
}

// Ingester runs the upload pipeline. It holds no per-request state and is
// safe for concurrent use.
type Ingester struct {
	cfg     Config
	scanner Scanner
	parser  *spreadsheet.Parser
	logger  *slog.Logger
	newID   idgen.Generator
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithScanner replaces the scanner selected by the config.
func WithScanner(s Scanner) Option {
	return func(ing *Ingester) { ing.scanner = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingester) { ing.logger = l }
}

// WithIDGenerator sets the generator naming temp copies when the context
// carries no request ID.
func WithIDGenerator(g idgen.Generator) Option {
	return func(ing *Ingester) { ing.newID = g }
}

// New creates an Ingester. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) (*Ingester, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ing := &Ingester{
		cfg:    cfg,
		logger: slog.Default(),
		newID:  idgen.Request,
	}
	for _, o := range opts {
		o(ing)
	}
	if ing.scanner == nil {
		ing.scanner = cfg.NewScanner()
	}
	ing.parser = spreadsheet.New(spreadsheet.Config{MaxFileSize: cfg.MaxBytes, Logger: ing.logger})
	return ing, nil
}

// ValidateAndParse runs the whole pipeline on f. It never returns an error:
// every failure is a problem string on the Outcome, with Status telling
// whose fault it is.
func (ing *Ingester) ValidateAndParse(ctx context.Context, f File) *Outcome {
	logger := ing.logger.With("filename", f.Filename, "content_type", f.ContentType, "size", f.Size)
	if id := kit.GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	start := time.Now()

	if problems := ing.checkStructure(f); len(problems) > 0 {
		logger.Info("upload: rejected", "problems", problems)
		return userError(problems...)
	}

	out := ing.process(ctx, f, logger)
	logger.Info("upload: processed",
		"status", out.Status.String(),
		"format", out.Format,
		"records", len(out.Records),
		"problems", out.Problems,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// checkStructure accumulates every structural problem of f.
func (ing *Ingester) checkStructure(f File) []string {
	var problems []string
	if f.Filename == "" {
		problems = append(problems, ProblemNoName)
	}
	if f.Size == 0 {
		problems = append(problems, ProblemEmpty)
	}
	if f.Size >= ing.cfg.MaxBytes {
		problems = append(problems, ing.tooBig())
	}
	if !ing.cfg.allowed(f.ContentType) {
		problems = append(problems, "Invalid content type: "+f.ContentType)
	}
	return problems
}

func (ing *Ingester) tooBig() string { return TooBig(ing.cfg.MaxBytes) }

// TooBig is the problem reported for a file of maxBytes or more. Callers
// that reject an oversized request before it reaches the Ingester use it
// to report the same message.
func TooBig(maxBytes int64) string {
	return fmt.Sprintf("File is too big (max %d bytes)", maxBytes)
}

// MaxBytes returns the exclusive upload size bound.
func (ing *Ingester) MaxBytes() int64 { return ing.cfg.MaxBytes }

// process owns the temp copy: it is created here and removed on return,
// whatever the outcome.
func (ing *Ingester) process(ctx context.Context, f File, logger *slog.Logger) *Outcome {
	path, n, err := ing.saveTemp(ctx, f)
	if path != "" {
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("upload: remove temp copy", "path", path, "error", err)
			}
		}()
	}
	if err != nil {
		logger.Error("upload: save temp copy", "error", err)
		return systemError(ProblemStorageFailed)
	}
	switch {
	case n == 0:
		return userError(ProblemEmpty)
	case n >= ing.cfg.MaxBytes:
		return userError(ing.tooBig())
	}

	if out := ing.scan(ctx, path, logger); out != nil {
		return out
	}
	return ing.parse(ctx, path, f, logger)
}

// saveTemp copies the body to <temp_dir>/<request-id>-<sanitized name>.
// The copy stops at MaxBytes; n == MaxBytes means the body was too big.
func (ing *Ingester) saveTemp(ctx context.Context, f File) (path string, n int64, err error) {
	id := kit.GetRequestID(ctx)
	if id == "" {
		id = ing.newID()
	}
	path, err = horosafe.SafePath(ing.cfg.TempDir, id+"-"+horosafe.SanitizeFilename(f.Filename))
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err = io.Copy(tmp, io.LimitReader(f.Body, ing.cfg.MaxBytes))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return path, n, fmt.Errorf("copy upload: %w", err)
	}
	return path, n, nil
}

// scan returns a failed Outcome, or nil when the file is clean.
func (ing *Ingester) scan(ctx context.Context, path string, logger *slog.Logger) *Outcome {
	warning, err := structuralWarning(path)
	if err != nil {
		logger.Error("upload: structural scan", "error", err)
		return systemError(ProblemScanFailed)
	}
	if warning != "" {
		logger.Warn("upload: blocked by structural scan", "warning", warning)
		return userError(ProblemSecurity)
	}

	if ing.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ing.cfg.ScanTimeout)
		defer cancel()
	}
	verdict, err := ing.scanner.Scan(ctx, path)
	if err != nil {
		logger.Error("upload: virus scan", "error", err)
		return systemError(ProblemScanFailed)
	}
	if verdict.Infected {
		logger.Warn("upload: virus found", "signature", verdict.Signature)
		return userError(ProblemVirus)
	}
	return nil
}

func (ing *Ingester) parse(ctx context.Context, path string, f File, logger *slog.Logger) *Outcome {
	res, err := ing.parser.ParseFile(ctx, path, spreadsheet.Options{
		Filename:    f.Filename,
		ContentType: f.ContentType,
	})
	if err != nil {
		var schemaErr *spreadsheet.SchemaError
		switch {
		case errors.Is(err, spreadsheet.ErrNonUTF8), errors.As(err, &schemaErr):
			return userError(sentence(err.Error()))
		default:
			logger.Error("upload: parse", "error", err)
			return systemError(ProblemParseFailed)
		}
	}
	return &Outcome{Records: res.Records, Format: res.Format, Status: StatusOK}
}

// sentence upper-cases the first letter of an error message for display.
func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Summary joins the problems of an Outcome on one line.
func (o *Outcome) Summary() string {
	return strings.Join(o.Problems, "; ")
}
