package dto

// UploadResponse describes a stored attachment
type UploadResponse struct {
	Filename     string `json:"filename" example:"1718000000000_report.pdf"`
	OriginalName string `json:"originalName" example:"report.pdf"`
	Size         int64  `json:"size" example:"500000"`
	HumanSize    string `json:"humanSize" example:"500 kB"`
	MimeType     string `json:"mimeType" example:"application/pdf"`
	URL          string `json:"url" example:"http://localhost:4000/uploads/1718000000000_report.pdf"`
}
