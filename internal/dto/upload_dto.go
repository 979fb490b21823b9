package dto

type UploadResponse struct {
	Success      bool   `json:"success"`
	URL          string `json:"url"`
	Hash         string `json:"hash"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	TS           int64  `json:"ts"`
}
