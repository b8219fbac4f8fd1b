package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shzded/MediCall-AI/pkg/logger"
)

const HeaderTwilioSignature = "X-Twilio-Signature"

// ComputeSignature is Twilio's request signature: base64(HMAC-SHA1(authToken, url +
// every POST param name and value, sorted by name)).
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}

// SignatureMiddleware rejects webhook requests not signed with authToken. The URL Twilio
// signed is rebuilt from publicBaseURL since the service usually sits behind a proxy.
// An empty authToken disables the check (local development only; config refuses it in
// production).
func SignatureMiddleware(authToken, publicBaseURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if authToken == "" {
			c.Next()
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fullURL := requestBaseURL(c, base) + c.Request.URL.RequestURI()
		if !ValidSignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(HeaderTwilioSignature)) {
			logger.FromGin(c).Warn("twilio signature rejected", "url", fullURL)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
