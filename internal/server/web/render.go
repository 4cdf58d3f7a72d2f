package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	msgInternal     = "Something went wrong, please try again later"
	msgUnauthorized = "Unauthorized"
	msgForbidden    = "Forbidden"
	msgBadRequest   = "Invalid request"
)

var templateFuncs = template.FuncMap{
	"deref": func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
}

// wantsJSON reports whether the client talks JSON rather than HTML forms.
func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == binding.MIMEJSON {
		return true
	}
	return c.NegotiateFormat(binding.MIMEHTML, binding.MIMEJSON) == binding.MIMEJSON
}

// page renders an HTML template with the caller's identity added to data.
func (s *Server) page(c *gin.Context, code int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if ident := identity(c); ident != nil {
		data["Identity"] = ident
	}
	c.HTML(code, name, data)
}

// fail aborts the request with a user visible message.
func (s *Server) fail(c *gin.Context, code int, msg string) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(code, gin.H{"error": msg})
		return
	}
	s.page(c, code, "error.html", gin.H{"Title": http.StatusText(code), "Status": code, "Message": msg})
	c.Abort()
}

// internal logs cause and answers with a generic 500.
func (s *Server) internal(c *gin.Context, msg string, cause error) {
	s.logger.Error(c.Request.Context(), msg, "request_id", c.GetString(requestIDKey), "error", cause)
	s.fail(c, http.StatusInternalServerError, msgInternal)
}

// redirect answers JSON clients with the target instead of a 303.
func redirect(c *gin.Context, to string) {
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"redirect": to})
		return
	}
	c.Redirect(http.StatusSeeOther, to)
}

// bindingMessage turns a binding failure into a message for the form.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgBadRequest
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	return msgBadRequest
}
