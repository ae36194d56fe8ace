package engine

// Class-specific fallback responses, returned when both the network and
// the cache cannot serve a request.

// placeholderPNG is a 1x1 transparent PNG
var placeholderPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

const offlineDocument = `<!DOCTYPE html>
<html>
<head><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This content is not available right now. Reconnect and try again.</p>
</body>
</html>`

const unavailableAPIResponse = `{"error":"unavailable","offline":true}`

// makeFallbackResponse builds the class-specific fallback for the resource
func makeFallbackResponse(url string, class ResourceClass) *Response {
	switch class {
	case ResourceClassImages:
		return &Response{
			URL:         url,
			Source:      ResponseSourceFallback,
			ContentType: "image/png",
			Payload:     placeholderPNG,
		}
	case ResourceClassAPI, ResourceClassMedia:
		return &Response{
			URL:         url,
			Source:      ResponseSourceFallback,
			ContentType: "application/json",
			Payload:     []byte(unavailableAPIResponse),
		}
	default:
		return &Response{
			URL:         url,
			Source:      ResponseSourceFallback,
			ContentType: "text/html; charset=utf-8",
			Payload:     []byte(offlineDocument),
		}
	}
}
