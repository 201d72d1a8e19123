package webhook

import (
	"net/url"
	"strings"

	"broker_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerAPIKey    = "X-Webhook-API-Key"
	ctxWebhookOrgID = "webhookOrgID"
	ctxWebhookKeyID = "webhookKeyID"
)

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// tenant of the key on the gin context.
func APIKeyAuthMiddleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}

		key, err := svc.Authenticate(c.Request.Context(), c.GetHeader(headerAPIKey), origin)
		if httpkit.HandleError(c, err) {
			c.Abort()
			return
		}

		c.Set(ctxWebhookOrgID, key.CompanyID)
		c.Set(ctxWebhookKeyID, key.ID)
		c.Next()
	}
}

func webhookOrgID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxWebhookOrgID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// isDomainAllowed matches the origin host against exact domains, "*" and
// "*.example.com" wildcards.
func isDomainAllowed(origin string, allowedDomains []string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "*":
			return true
		case strings.HasPrefix(domain, "*."):
			if strings.HasSuffix(host, domain[1:]) || host == domain[2:] {
				return true
			}
		case host == domain:
			return true
		}
	}
	return false
}
