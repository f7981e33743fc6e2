package agent

import (
	"github.com/haasonsaas/agentrt/pkg/models"
)

// contextFilesToAttachments converts tool-produced ContextFiles into the
// wire Attachment shape used by external notification and transcript
// persistence.
func contextFilesToAttachments(files []ContextFile) []models.Attachment {
	if len(files) == 0 {
		return nil
	}
	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		attType := "file"
		switch f.FileType {
		case ContextFileImage:
			attType = "image"
		case ContextFileVideo:
			attType = "video"
		case ContextFileAudio:
			attType = "audio"
		}

		attachments = append(attachments, models.Attachment{
			Type:     attType,
			Filename: f.FileName,
			MimeType: f.MimeType,
			Size:     f.Size,
			URL:      f.URI,
		})
	}
	return attachments
}
