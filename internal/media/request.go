package media

import "strings"

const (
	DefaultFormat     = "mp4"
	DefaultResolution = "best"
)

// DownloadRequest asks for a media download from a URL.
type DownloadRequest struct {
	URL         string `json:"url"`
	Format      string `json:"format,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Validate rejects a request without a source URL.
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Message: "URL is required."}
	}

	return nil
}

// WithDefaults fills in the optional fields.
func (r DownloadRequest) WithDefaults() DownloadRequest {
	if strings.TrimSpace(r.Format) == "" {
		r.Format = DefaultFormat
	}

	if strings.TrimSpace(r.Resolution) == "" {
		r.Resolution = DefaultResolution
	}

	return r
}

// ConvertRequest asks for a local file to be converted to another format.
type ConvertRequest struct {
	InputFilePath string `json:"inputFilePath"`
	OutputFormat  string `json:"outputFormat"`
}

// Validate rejects a request missing the input path or the output format.
func (r ConvertRequest) Validate() error {
	if strings.TrimSpace(r.InputFilePath) == "" {
		return &ValidationError{Field: "inputFilePath", Message: "Input file path is required."}
	}

	if strings.TrimSpace(r.OutputFormat) == "" {
		return &ValidationError{Field: "outputFormat", Message: "Output format is required."}
	}

	return nil
}
