package middleware

import "github.com/gin-gonic/gin"

const (
	responseMetaKey = "response_meta"
	noticeKey       = "notice"
)

// SetNotice attaches a non-error notice, such as SECTION_FULL on a waitlisted
// registration, to the response metadata.
func SetNotice(c *gin.Context, code string) {
	ensureMeta(c)[noticeKey] = code
}

// ExtractMeta returns the metadata stored on the context, or nil when empty.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok && len(typed) > 0 {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
