package models

// UploadRecord describes one stored demo video. It is written once, as the
// JSON sidecar next to the video, and never modified afterwards.
type UploadRecord struct {
	Hash         string            `json:"hash"`
	OriginalName string            `json:"originalName"`
	Filename     string            `json:"filename"`
	MimeType     string            `json:"mimetype"`
	Size         int64             `json:"size"` // in bytes
	SavedPath    string            `json:"savedPath"`
	TS           int64             `json:"ts"` // unix millis
	Extra        map[string]string `json:"extra"`
}

// Key is the hash+timestamp stem shared by the video and its sidecar.
func (r *UploadRecord) Key() string {
	return UploadKey(r.Hash, r.TS)
}
