package mapdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Format is an on-disk map-data encoding.
type Format string

const (
	// FormatOverpassJSON is an Overpass API style JSON document (.json, .geojson).
	FormatOverpassJSON Format = "overpass-json"
	// FormatPBF is an OSM protobuf extract (.pbf).
	FormatPBF Format = "osm-pbf"
	// FormatOSMXML is an OSM XML document (.osm, .xml).
	FormatOSMXML Format = "osm-xml"
)

// DetectFormat picks a format from the file name. A trailing .gz is ignored.
// Anything unrecognised is treated as Overpass JSON.
func DetectFormat(path string) Format {
	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(name) {
	case ".pbf":
		return FormatPBF
	case ".osm", ".xml":
		return FormatOSMXML
	default:
		return FormatOverpassJSON
	}
}

// FileSource reads map data from a local file. Files ending in .gz are decompressed.
type FileSource struct {
	path   string
	format Format
}

// NewFileSource creates a source for the file at path, detecting its format from the name.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, format: DetectFormat(path)}
}

// Name returns the source identifier.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Path returns the file path backing the source.
func (s *FileSource) Path() string {
	return s.path
}

// Version derives a version from the file's size and modification time.
func (s *FileSource) Version(_ context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", loadError(s.Name(), "stat", err)
	}
	return fmt.Sprintf("%x-%x", info.Size(), info.ModTime().UnixNano()), nil
}

// Load reads and decodes the whole file.
func (s *FileSource) Load(ctx context.Context) (*Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, loadError(s.Name(), "open", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(s.path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, loadError(s.Name(), "gunzip", err)
		}
		defer gz.Close()
		r = gz
	}

	ds, err := decode(ctx, s.format, r)
	if err != nil {
		return nil, loadError(s.Name(), "decode", err)
	}
	return ds, nil
}

func decode(ctx context.Context, format Format, r io.Reader) (*Dataset, error) {
	switch format {
	case FormatPBF:
		return DecodePBF(ctx, r)
	case FormatOSMXML:
		return DecodeOSMXML(ctx, r)
	default:
		return DecodeOverpass(r)
	}
}
