package image

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// Artifact is a normalised RGB JPEG persisted for one request.
type Artifact struct {
	Path         string
	MIMEType     string
	SourceFormat string
	Width        int
	Height       int
	Size         int64
}
