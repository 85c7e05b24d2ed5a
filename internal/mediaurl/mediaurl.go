package mediaurl

import "strings"

const (
	PathPrefix    = "/media/"
	previewSuffix = "/preview"
)

func Blob(baseURL, blobID string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return baseURL + PathPrefix + blobID
}

func BlobPreview(baseURL, blobID string) string {
	return Blob(baseURL, blobID) + previewSuffix
}

// Object joins a public bucket URL and an object key.
func Object(publicURL, key string) string {
	return strings.TrimRight(strings.TrimSpace(publicURL), "/") + "/" + strings.TrimLeft(key, "/")
}
