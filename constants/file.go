package constants

import "strings"

// Upload constraints enforced by callers of the pipeline.
const (
	MaxUploadFiles    = 5
	MaxUploadFileSize = 5 * 1024 * 1024
)

// AllowedMIMETypes holds the document types the analysis provider accepts.
var AllowedMIMETypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/gif":       {},
	"image/bmp":       {},
	"image/tiff":      {},
	"image/webp":      {},
	"application/pdf": {},
}

// Analysis model names used when a mapping does not pin one.
const (
	ModelPrebuiltInvoice = "prebuilt-invoice"
	ModelPrebuiltReceipt = "prebuilt-receipt"
)

// ModelForContentType picks a default analysis model from the content-type
// name. Mappings with an explicit model override this.
func ModelForContentType(name string) string {
	if strings.Contains(strings.ToLower(name), "invoice") {
		return ModelPrebuiltInvoice
	}
	return ModelPrebuiltReceipt
}
