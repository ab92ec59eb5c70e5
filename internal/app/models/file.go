package models

// FileRef points at a stored attachment binary. Several messages may share one
// binary (forwarding copies the reference, never the bytes).
type FileRef struct {
	StoredName   string `json:"storedName" db:"stored_name" example:"1718000000000_report.pdf"`
	OriginalName string `json:"originalName" db:"original_name" example:"report.pdf"`
	Size         int64  `json:"size" db:"size" example:"500000"`
	MimeType     string `json:"mimeType" db:"mime_type" example:"application/pdf"`
}

// DisplayName returns the name shown to users for this attachment
func (f *FileRef) DisplayName() string {
	if f == nil {
		return ""
	}
	if f.OriginalName != "" {
		return f.OriginalName
	}
	return f.StoredName
}
