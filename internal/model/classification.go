package model

// FileType is the physical format detected for an uploaded file.
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeXLSX    FileType = "xlsx"
	FileTypeUnknown FileType = "unknown"
)

// Classification is the outcome of the classification collaborator for one
// file.
type Classification struct {
	FileType   FileType `json:"file_type"`
	Category   Category `json:"document_category"`
	Confidence float64  `json:"confidence"`
	Summary    string   `json:"summary,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// UnknownClassification is the synthetic zero-confidence classification
// attached to files whose classification failed outright.
func UnknownClassification() Classification {
	return Classification{
		FileType:   FileTypeUnknown,
		Category:   CategoryOther,
		Confidence: 0,
	}
}

// FileUnit identifies one downloaded file on local disk. Identity is FileID;
// downstream events reference the unit, they never mutate a copy.
type FileUnit struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	Filename string `json:"filename"`
}
