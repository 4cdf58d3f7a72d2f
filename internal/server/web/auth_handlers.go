package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/server/services"
	"github.com/gin-gonic/gin"
)

type signupForm struct {
	Email           string `form:"email" json:"email" binding:"required,email"`
	Password        string `form:"password" json:"password" binding:"required,min=5"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" binding:"required"`
	IsIssuer        bool   `form:"is_issuer" json:"is_issuer"`
	InstitutionName string `form:"institution_name" json:"institution_name"`
	FullName        string `form:"full_name" json:"full_name"`
}

type loginForm struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

const (
	msgPasswordMismatch = "Passwords do not match"
	msgEmailTaken       = "Email already in use"
	msgBadCredentials   = "Invalid email or password"
)

func dashboardFor(role string) string {
	if role == roleIssuer {
		return "/dashboard/issuer"
	}
	return "/dashboard/student"
}

func (s *Server) index(c *gin.Context) {
	s.page(c, http.StatusOK, "index.html", gin.H{"Title": "EduChain"})
}

func (s *Server) signinPage(c *gin.Context) {
	s.page(c, http.StatusOK, "signin.html", gin.H{"Title": "Login"})
}

func (s *Server) signupPage(c *gin.Context) {
	s.page(c, http.StatusOK, "signup.html", gin.H{"Title": "Register"})
}

func (s *Server) signup(c *gin.Context) {
	var f signupForm
	if err := c.ShouldBind(&f); err != nil {
		msg := bindingMessage(err)
		if f.Password != f.ConfirmPassword {
			msg = msgPasswordMismatch
		}
		s.signupError(c, f, msg)
		return
	}
	if f.Password != f.ConfirmPassword {
		s.signupError(c, f, msgPasswordMismatch)
		return
	}

	u, err := s.deps.Users.Signup(c.Request.Context(), services.SignupInput{
		Email:           f.Email,
		Password:        f.Password,
		ConfirmPassword: f.ConfirmPassword,
		IsIssuer:        f.IsIssuer,
		InstitutionName: f.InstitutionName,
		FullName:        f.FullName,
	})
	if err != nil {
		var ve *common.ValidationError
		switch {
		case errors.As(err, &ve):
			s.signupError(c, f, ve.Message)
		case errors.Is(err, common.ErrorAlreadyExists):
			s.signupError(c, f, msgEmailTaken)
		default:
			s.internal(c, "signup failed", err)
		}
		return
	}

	s.deps.Metrics.Signups.Inc()

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{"id": u.ID})
		return
	}
	c.Redirect(http.StatusSeeOther, signinPath)
}

func (s *Server) signupError(c *gin.Context, f signupForm, msg string) {
	if wantsJSON(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	f.Password, f.ConfirmPassword = "", ""
	s.page(c, http.StatusBadRequest, "signup.html", gin.H{"Title": "Register", "Error": msg, "Form": f})
}

func (s *Server) login(c *gin.Context) {
	var f loginForm
	if err := c.ShouldBind(&f); err != nil {
		s.loginError(c, http.StatusBadRequest, bindingMessage(err), f.Email)
		return
	}

	res, err := s.deps.Users.Login(c.Request.Context(), f.Email, f.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.deps.Metrics.Logins.WithLabelValues("failure").Inc()
			s.loginError(c, http.StatusUnauthorized, msgBadCredentials, f.Email)
			return
		}
		s.internal(c, "login failed", err)
		return
	}

	value, err := s.deps.Cookies.Encode(res.Token)
	if err != nil {
		s.internal(c, "session cookie encoding failed", err)
		return
	}
	s.setSessionCookie(c, value, int(s.opts.SessionTTL/time.Second))
	s.deps.Metrics.Logins.WithLabelValues("success").Inc()

	redirect(c, dashboardFor(res.User.Role))
}

func (s *Server) loginError(c *gin.Context, code int, msg, email string) {
	if wantsJSON(c) {
		c.JSON(code, gin.H{"error": msg})
		return
	}
	s.page(c, code, "signin.html", gin.H{"Title": "Login", "Error": msg, "Email": email})
}

func (s *Server) logout(c *gin.Context) {
	if token, ok := s.sessionToken(c); ok {
		if err := s.deps.Users.Logout(c.Request.Context(), token); err != nil {
			s.logger.Warn(c.Request.Context(), "logout failed", "error", err)
		}
	}
	s.setSessionCookie(c, "", -1)
	redirect(c, signinPath)
}
