// Package domain holds the extraction contracts consumed by the knowledge
// graph builder, plus validation for them. The extraction pipeline itself
// (PDF parsing, LLM calls) lives outside this codebase; these types are the
// boundary it delivers results across.
package domain

// ExtractedComponent is one component found in a document.
type ExtractedComponent struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Specs map[string]any `json:"specs,omitempty"`
}

// ExtractedConnection is a physical or logical link between two components.
type ExtractedConnection struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Label    string `json:"label,omitempty"`
}

// ExtractedFaultCode is a fault code with the components it implicates.
type ExtractedFaultCode struct {
	Code              string   `json:"code"`
	Description       string   `json:"description,omitempty"`
	Severity          string   `json:"severity,omitempty"`
	RelatedComponents []string `json:"related_components,omitempty"`
}

// ExtractionResult is the full yield of one document, as published on the
// extraction subject and fed to the bulk loader.
type ExtractionResult struct {
	DocumentID  string                `json:"document_id"`
	Components  []ExtractedComponent  `json:"components"`
	Connections []ExtractedConnection `json:"connections"`
	FaultCodes  []ExtractedFaultCode  `json:"fault_codes"`
}
