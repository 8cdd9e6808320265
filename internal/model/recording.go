package model

import "time"

// RecordingArtifact is the assembled session recording. At most one artifact
// is authoritative per session; a later upload replaces an earlier one
// (replace-if-newer, never merge).
type RecordingArtifact struct {
	SessionID       string    `json:"sessionId" bson:"_id"`
	Blob            []byte    `json:"-" bson:"blob"`
	DurationSeconds int       `json:"durationSeconds" bson:"durationSeconds"`
	MimeType        string    `json:"mimeType" bson:"mimeType"`
	UploadedAt      time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

// RecordingMeta is the artifact without its bytes, for listings and upload
// acknowledgements.
type RecordingMeta struct {
	SessionID       string    `json:"sessionId"`
	DurationSeconds int       `json:"durationSeconds"`
	MimeType        string    `json:"mimeType"`
	SizeBytes       int       `json:"sizeBytes"`
	UploadedAt      time.Time `json:"uploadedAt"`
}

// Meta strips the blob.
func (a *RecordingArtifact) Meta() *RecordingMeta {
	return &RecordingMeta{
		SessionID:       a.SessionID,
		DurationSeconds: a.DurationSeconds,
		MimeType:        a.MimeType,
		SizeBytes:       len(a.Blob),
		UploadedAt:      a.UploadedAt,
	}
}
