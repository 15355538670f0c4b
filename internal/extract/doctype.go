package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/llm"
)

// DocumentType selects which prompt family is used for concept extraction.
type DocumentType string

const (
	TypeTechnical     DocumentType = "technical"
	TypeScientific    DocumentType = "scientific"
	TypeNarrative     DocumentType = "narrative"
	TypeBusiness      DocumentType = "business"
	TypeAcademic      DocumentType = "academic"
	TypeLegal         DocumentType = "legal"
	TypeMedical       DocumentType = "medical"
	TypeInstructional DocumentType = "instructional"
	TypeAnalytical    DocumentType = "analytical"
	TypeProcedural    DocumentType = "procedural"
	TypeGeneral       DocumentType = "general"
)

// ParseDocumentType maps a model response to a known type, defaulting to
// general for anything unrecognized.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeTechnical, TypeScientific, TypeNarrative, TypeBusiness,
		TypeAcademic, TypeLegal, TypeMedical, TypeInstructional,
		TypeAnalytical, TypeProcedural, TypeGeneral:
		return DocumentType(strings.ToLower(strings.TrimSpace(s)))
	}
	return TypeGeneral
}

// detectSampleLen bounds how much of the document is sent for type detection.
const detectSampleLen = 3000

// DetectType classifies the document so extraction can use type-specific
// prompts. Detection failures are not fatal: the general prompts work for
// any document, so errors fall back to TypeGeneral.
func DetectType(ctx context.Context, provider llm.Provider, doc *document.Document, log *slog.Logger) DocumentType {
	prompt := buildDetectionPrompt(doc.Sample(detectSampleLen))
	resp, err := provider.Complete(ctx, prompt, 50)
	if err != nil {
		log.Warn("document type detection failed, using general prompts", "error", err)
		return TypeGeneral
	}
	dt := ParseDocumentType(resp)
	log.Info("detected document type", "type", string(dt))
	return dt
}
