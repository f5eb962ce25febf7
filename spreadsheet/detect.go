package spreadsheet

import (
	"encoding/xml"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// Format names the container an upload was parsed as.
type Format string

const (
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
	FormatODS  Format = "ods"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

// detector probes a stream for one format. Detectors never consume the
// stream: the position is reset to 0 whatever the outcome.
type detector struct {
	format Format
	probe  func(io.ReadSeeker) bool
}

// detectors is the sniffing order. Delimited text is the fallback.
var detectors = []detector{
	{FormatXLS, probeLegacyBinary},
	{FormatXLSX, probeOpenXML},
	{FormatODS, probeOpenDocument},
}

// IsLegacyBinary reports whether rs is a BIFF workbook with a readable
// first sheet.
func IsLegacyBinary(rs io.ReadSeeker) bool {
	return sniff(rs, FormatXLS, probeLegacyBinary, slog.Default())
}

// IsOpenXML reports whether rs is an Office Open XML workbook with at
// least one sheet.
func IsOpenXML(rs io.ReadSeeker) bool {
	return sniff(rs, FormatXLSX, probeOpenXML, slog.Default())
}

// IsBinarySpreadsheet reports whether rs is either workbook family.
func IsBinarySpreadsheet(rs io.ReadSeeker) bool {
	return IsLegacyBinary(rs) || IsOpenXML(rs)
}

// IsOpenDocument reports whether rs is an OpenDocument spreadsheet holding
// at least one table.
func IsOpenDocument(rs io.ReadSeeker) bool {
	return sniff(rs, FormatODS, probeOpenDocument, slog.Default())
}

// Detect returns the first format whose detector accepts rs, or FormatCSV.
func Detect(rs io.ReadSeeker) Format {
	return detect(rs, slog.Default())
}

func detect(rs io.ReadSeeker, logger *slog.Logger) Format {
	for _, d := range detectors {
		if sniff(rs, d.format, d.probe, logger) {
			return d.format
		}
	}
	return FormatCSV
}

// sniff runs probe with the rewind and panic guards every detector needs.
func sniff(rs io.ReadSeeker, format Format, probe func(io.ReadSeeker) bool, logger *slog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("spreadsheet: detector panicked", "format", format, "panic", r)
			ok = false
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			logger.Debug("spreadsheet: rewind after detection", "format", format, "error", err)
		}
	}()
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return false
	}
	ok = probe(rs)
	if !ok {
		logger.Debug("spreadsheet: not this format", "format", format)
	}
	return ok
}

func probeLegacyBinary(rs io.ReadSeeker) bool {
	wb, err := openXLS(rs)
	if err != nil {
		return false
	}
	sheet, err := wb.GetSheet(0)
	return err == nil && sheet != nil
}

func probeOpenXML(rs io.ReadSeeker) bool {
	f, err := excelize.OpenReader(rs)
	if err != nil {
		return false
	}
	defer f.Close()
	return len(f.GetSheetList()) > 0
}

func probeOpenDocument(rs io.ReadSeeker) bool {
	rc, err := openODSContent(rs)
	if err != nil {
		return false
	}
	defer rc.Close()
	return seekFirstTable(xml.NewDecoder(rc)) == nil
}
