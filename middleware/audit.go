package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metrocity/server/audit"
)

const auditUserKey = "audit_user_id"

// Auditor receives audit entries. *audit.Service satisfies it.
type Auditor interface {
	Log(entry audit.AuditEntry)
}

// SetAuditUser attributes the current request to userID in the audit log.
func SetAuditUser(c *gin.Context, userID int64) {
	c.Set(auditUserKey, userID)
}

// Audit records every request that is not a GET/HEAD/OPTIONS. Request
// bodies are never recorded; only route params and the query string are.
func Audit(a Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		entry := audit.AuditEntry{
			TraceID:    GetTraceID(c),
			Action:     c.Request.Method + " " + route,
			Status:     c.Writer.Status(),
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		req := map[string]interface{}{}
		if len(c.Params) > 0 {
			params := make(map[string]string, len(c.Params))
			for _, p := range c.Params {
				params[p.Key] = p.Value
			}
			req["params"] = params
		}
		if q := c.Request.URL.RawQuery; q != "" {
			req["query"] = q
		}
		if len(req) > 0 {
			entry.Request = req
		}
		if v, ok := c.Get(auditUserKey); ok {
			if id, ok := v.(int64); ok {
				entry.UserID = &id
			}
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.Last().Error()
		}
		a.Log(entry)
	}
}
