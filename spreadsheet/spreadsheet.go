// CLAUDE:SUMMARY Parse dispatch: sniffs the container, runs the matching row extractor and zips rows into records.
// Package spreadsheet parses tabular uploads into header-keyed records.
//
// Supported formats, tried in this order:
//   - xls: legacy BIFF workbook (first sheet only)
//   - xlsx: Office Open XML workbook (first sheet only)
//   - ods: OpenDocument spreadsheet (first table only)
//   - csv: delimited text, the fallback; tab-separated when asked
//
// Detection is by content, never by extension.
//
// Usage:
//
//	p := spreadsheet.New(spreadsheet.Config{})
//	res, err := p.Parse(f, spreadsheet.Options{Filename: "data.csv"})
//	fmt.Println(res.Format, len(res.Records), "records")
package spreadsheet

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options carries what the caller knows about an upload beyond its bytes.
// Only the delimited path consults it.
type Options struct {
	Filename    string
	ContentType string
	// Comma overrides the delimiter of delimited text.
	Comma rune
}

func (o Options) comma() rune {
	if o.Comma != 0 {
		return o.Comma
	}
	if strings.EqualFold(filepath.Ext(o.Filename), ".tsv") ||
		strings.HasPrefix(strings.ToLower(o.ContentType), "text/tab-separated-values") {
		return '\t'
	}
	return ','
}

// Result is a parsed upload.
type Result struct {
	Format  Format   `json:"format"`
	Records []Record `json:"records"`
}

// Parser sniffs and parses spreadsheets.
type Parser struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Parser with the given configuration.
func New(cfg Config) *Parser {
	cfg.defaults()
	return &Parser{cfg: cfg, logger: cfg.Logger}
}

// Detect returns the format of rs. The stream is left at offset 0.
func (p *Parser) Detect(rs io.ReadSeeker) Format {
	return detect(rs, p.logger)
}

// Rows detects the format of rs and returns the extractor's row sequence,
// header first. The sequence is single-pass and reads rs lazily.
func (p *Parser) Rows(rs io.ReadSeeker, opts Options) (Format, iter.Seq2[Row, error]) {
	format, rows, _ := p.rows(rs, opts)
	return format, rows
}

// rows is Rows. For text and ODF sources, which skip lines or collapse
// repeated rows, it also returns where each yielded row's physical row
// number is stored.
func (p *Parser) rows(rs io.ReadSeeker, opts Options) (Format, iter.Seq2[Row, error], *int) {
	format := p.Detect(rs)
	switch format {
	case FormatXLS:
		return format, xlsRows(rs, p.logger), nil
	case FormatXLSX:
		return format, xlsxRows(rs, p.logger), nil
	case FormatODS:
		line := new(int)
		return format, odsRows(rs, p.logger, line), line
	}
	comma := opts.comma()
	if comma == '\t' {
		format = FormatTSV
	}
	line := new(int)
	return format, delimitedRows(rs, comma, line), line
}

// Parse reads every record of rs. Any decoding or schema error fails the
// whole parse.
func (p *Parser) Parse(rs io.ReadSeeker, opts Options) (*Result, error) {
	format, rows, line := p.rows(rs, opts)
	records, err := toRecords(rows, line)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	p.logger.Debug("spreadsheet: parsed", "format", format, "records", len(records))
	return &Result{Format: format, Records: records}, nil
}

// ParseFile parses the file at path. The filename drives TSV selection
// unless opts names one.
func (p *Parser) ParseFile(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize)
	}
	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}
	return p.Parse(f, opts)
}

// DetectFile returns the format of the file at path.
func (p *Parser) DetectFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return p.Detect(f), nil
}

// SupportedFormats lists the formats Parse understands, in detection order.
func SupportedFormats() []Format {
	return []Format{FormatXLS, FormatXLSX, FormatODS, FormatCSV, FormatTSV}
}
