package activitypub

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

const contextIdentity = "https://w3id.org/identity/v1"

//go:embed contexts/*.jsonld
var contextFiles embed.FS

// knownContexts maps the context URLs signatures are computed with to
// their embedded copies.
var knownContexts = map[string]string{
	ContextActivityStreams:                        "contexts/activitystreams.jsonld",
	"http://www.w3.org/ns/activitystreams":        "contexts/activitystreams.jsonld",
	"https://www.w3.org/ns/activitystreams.jsonld": "contexts/activitystreams.jsonld",
	ContextSecurity:                               "contexts/security-v1.jsonld",
	contextIdentity:                               "contexts/identity-v1.jsonld",
}

// contextLoader resolves remote JSON-LD contexts from the embedded copies
// only. Normalizing a document never goes out to the network; a document
// naming any other context cannot be normalized.
type contextLoader struct{}

func (contextLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	name, ok := knownContexts[u]
	if !ok {
		return nil, fmt.Errorf("unknown JSON-LD context %s", u)
	}
	raw, err := contextFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read context %s: %w", u, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse context %s: %w", u, err)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

// normalize returns the URDNA2015 canonical N-Quads of doc.
func normalize(doc any) (string, error) {
	// the processor only understands plain decoded JSON, not named map types
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return "", fmt.Errorf("failed to decode document: %w", err)
	}

	options := ld.NewJsonLdOptions("")
	options.Format = "application/n-quads"
	options.Algorithm = ld.AlgorithmURDNA2015
	options.DocumentLoader = contextLoader{}

	out, err := ld.NewJsonLdProcessor().Normalize(plain, options)
	if err != nil {
		return "", fmt.Errorf("failed to normalize document: %w", err)
	}
	nquads, _ := out.(string)
	return nquads, nil
}
