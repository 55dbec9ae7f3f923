package model

// Extraction is what the extraction collaborator returns for one file.
// TextContent is populated for contracts only (the parsed full text used
// later for matching); Data is the structured payload persisted to the
// extracted_data column for both categories.
type Extraction struct {
	TextContent string         `json:"text_content,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}
