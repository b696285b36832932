// package formatter writes generated content and batch reports to disk
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Nexgear75/MacScribe/internal/shared"
)

// generatedSuffix is appended to the source's base name when exporting into a directory.
const generatedSuffix = "_generated"

// Document is the JSON export of generated content.
type Document struct {
	Source      string    `json:"source"`
	Format      string    `json:"format"`
	GeneratedAt time.Time `json:"generated_at"`
	Content     string    `json:"content"`
}

// Exporter writes generated content next to a default output folder.
type Exporter struct {
	defaultDir string
	now        func() time.Time
}

// NewExporter creates an [Exporter] that writes into defaultDir when no output path is given.
func NewExporter(defaultDir string) *Exporter {
	if defaultDir == "" {
		defaultDir = "."
	}
	return &Exporter{defaultDir: defaultDir, now: time.Now}
}

// ResolveOutputPath decides where content generated from sourcePath is written.
//
//   - an existing directory, or a path ending in a separator, yields {dir}/{base}_generated.{format}
//   - a path without the .{format} suffix gets it appended
//   - anything else is used verbatim
//
// An empty outputPath resolves against the exporter's default directory.
func (e *Exporter) ResolveOutputPath(sourcePath, format, outputPath string) string {
	format = strings.TrimPrefix(format, ".")
	if outputPath == "" {
		outputPath = e.defaultDir + string(filepath.Separator)
	}

	if isDir(outputPath) {
		return filepath.Join(outputPath, baseName(sourcePath)+generatedSuffix+"."+format)
	}
	if !strings.HasSuffix(outputPath, "."+format) {
		return outputPath + "." + format
	}
	return outputPath
}

// Export renders content as format and writes it to the resolved output path, creating
// parent directories. It returns the path written.
func (e *Exporter) Export(content, sourcePath, format, outputPath string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("output format is required")
	}

	path := e.ResolveOutputPath(sourcePath, format, outputPath)

	data, err := e.render(content, sourcePath, format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	return path, nil
}

func (e *Exporter) render(content, sourcePath, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json":
		doc := Document{Source: sourcePath, Format: "json", GeneratedAt: e.now().UTC(), Content: content}
		data, err := shared.MarshalJSON(doc, true)
		if err != nil {
			return nil, fmt.Errorf("JSON marshal failed: %w", err)
		}
		return data, nil
	case "md", "txt":
		return []byte(content), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(v any, path string) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("JSON marshal failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// ToCSV encodes headers followed by rows.
func ToCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSV writes headers and rows as CSV to path.
func WriteCSV(headers []string, rows [][]string, path string) error {
	data, err := ToCSV(headers, rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

func isDir(path string) bool {
	if strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// baseName returns the file name of source without its extension. Remote sources
// are reduced to their last path segment.
func baseName(source string) string {
	if shared.IsURL(source) {
		source = strings.TrimRight(source, "/")
		if i := strings.IndexAny(source, "?#"); i >= 0 {
			source = source[:i]
		}
		source = source[strings.LastIndex(source, "/")+1:]
	}
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "output"
	}
	return base
}
