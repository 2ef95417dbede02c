package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/infrastructure/tenantcache"
)

const TenantContextKey = "tenant"

type TenantMiddleware struct {
	resolver   *tenantcache.Service
	headerName string
	logger     zerolog.Logger
}

func NewTenantMiddleware(resolver *tenantcache.Service, headerName string, logger zerolog.Logger) *TenantMiddleware {
	if headerName == "" {
		headerName = "X-Club-Slug"
	}
	return &TenantMiddleware{
		resolver:   resolver,
		headerName: headerName,
		logger:     logger,
	}
}

// Handler resolves the tenant for every request and maps the four tenant
// failure kinds to distinct responses, so operators can tell billing
// problems from terminations.
func (m *TenantMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := m.resolver.Resolve(c.Request.Context(), c.GetHeader(m.headerName), c.Request.Host)
		if err != nil {
			status, message := tenantErrorResponse(err)
			m.logger.Warn().Err(err).Str("host", c.Request.Host).Msg("Tenant resolution failed")
			c.JSON(status, gin.H{"success": false, "message": message})
			c.Abort()
			return
		}

		c.Set(TenantContextKey, tenant)
		c.Next()
	}
}

// WebhookHandler resolves the tenant like Handler but never propagates the
// failure: providers treat any non-2xx as a delivery failure and retry, so
// a suspended or past-due club still gets its deliveries acknowledged. The
// payload is dropped and logged; the provider sees success either way.
func (m *TenantMiddleware) WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := m.resolver.Resolve(c.Request.Context(), c.GetHeader(m.headerName), c.Request.Host)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("host", c.Request.Host).
				Str("path", c.Request.URL.Path).
				Msg("Webhook for unresolvable club acknowledged and dropped")
			c.JSON(http.StatusOK, gin.H{"success": true})
			c.Abort()
			return
		}

		c.Set(TenantContextKey, tenant)
		c.Next()
	}
}

func tenantErrorResponse(err error) (int, string) {
	var accessErr *domain.TenantAccessError
	if !errors.As(err, &accessErr) {
		return http.StatusInternalServerError, "failed to resolve club"
	}
	switch accessErr.Kind {
	case domain.TenantAccessNotFound:
		return http.StatusNotFound, "club not found"
	case domain.TenantAccessSuspended:
		return http.StatusForbidden, "club is suspended"
	case domain.TenantAccessInactive:
		return http.StatusForbidden, "club is no longer active"
	case domain.TenantAccessPaymentRequired:
		return http.StatusPaymentRequired, "club subscription requires payment"
	default:
		return http.StatusInternalServerError, "failed to resolve club"
	}
}

// TenantFrom pulls the resolved tenant out of the gin context.
func TenantFrom(c *gin.Context) *domain.Tenant {
	value, ok := c.Get(TenantContextKey)
	if !ok {
		return nil
	}
	tenant, _ := value.(*domain.Tenant)
	return tenant
}
