package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag writes payload with a strong ETag over its encoding
// and answers 304 when If-None-Match already names it. Profiles are
// per-caller, so caches are told to keep them private.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	etag := etagFor(body)
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", body)
}

func etagFor(body []byte) string {
	sum := sha256.Sum256(body)

	return `"` + base64.RawURLEncoding.EncodeToString(sum[:16]) + `"`
}

// etagMatches uses the weak comparison If-None-Match calls for.
func etagMatches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" || current == "" {
		return false
	}

	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(current, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}

	return false
}
