package metastore

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// mappingResources packages the fixed mapping bodies the way
// original_source's getMapping loads them off the Java classpath. embed
// is the idiomatic Go analogue of a classpath resource lookup; there is
// no third-party substitute for "bundle a file into the binary", so this
// one corner of internal/metastore is stdlib by necessity.
//
//go:embed mappings/*.json
var mappingResources embed.FS

// defaultMappingName is the fixed type name §4.1 specifies.
const defaultMappingName = "default"

func loadMappingResource(name string) ([]byte, error) {
	return mappingResources.ReadFile("mappings/" + name + ".json")
}

// parseMapping turns a raw mapping body into a bleve IndexMapping. A nil
// or empty body falls back to a fully dynamic default mapping.
func parseMapping(raw []byte) (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return m, nil
}
