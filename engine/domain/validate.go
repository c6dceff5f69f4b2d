package domain

import "fmt"

// ValidateExtraction checks an ExtractionResult before it touches the graph.
// Records with empty ids would create unreachable nodes, so they are
// rejected here rather than silently inserted.
func ValidateExtraction(r ExtractionResult) error {
	if r.DocumentID == "" {
		return NewValidationError("document_id", "", ErrMissingDocumentID)
	}
	for i, c := range r.Components {
		if c.ID == "" {
			return NewValidationError(fmt.Sprintf("components[%d].id", i), c.Name, ErrMissingID)
		}
	}
	for i, c := range r.Connections {
		if c.SourceID == "" || c.TargetID == "" {
			return NewValidationError(
				fmt.Sprintf("connections[%d]", i),
				c.SourceID+"->"+c.TargetID,
				ErrEmptyEndpoint,
			)
		}
	}
	for i, f := range r.FaultCodes {
		if f.Code == "" {
			return NewValidationError(fmt.Sprintf("fault_codes[%d].code", i), f.Description, ErrMissingCode)
		}
	}
	return nil
}
