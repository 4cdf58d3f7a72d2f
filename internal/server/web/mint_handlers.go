package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/server/models"
	"github.com/gin-gonic/gin"
)

type mintForm struct {
	CertID   int64 `form:"cert_id" json:"cert_id" binding:"required,gt=0"`
	CourseID int64 `form:"course_id" json:"course_id"`
}

const (
	msgAlreadyMinted  = "Certificate already minted"
	msgMintInProgress = "Certificate mint already in progress"
	msgMintPending    = "Transaction submitted, waiting for confirmation"
	msgCertNotFound   = "Certificate not found"
	msgInvalidLink    = "Invalid or expired verification link"
)

func (s *Server) mintCert(c *gin.Context) {
	var f mintForm
	if err := c.ShouldBind(&f); err != nil {
		s.fail(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	back := "/dashboard/student"
	if f.CourseID > 0 {
		back = fmt.Sprintf("/dashboard/student/courses/%d", f.CourseID)
	}

	res, err := s.deps.Mints.Mint(c.Request.Context(), f.CertID, identity(c))
	switch {
	case err == nil:
		if wantsJSON(c) {
			c.JSON(http.StatusOK, gin.H{"cert_id": res.CertID, "digest": res.Digest, "verify_token": res.VerifyToken})
			return
		}
		c.Redirect(http.StatusSeeOther, back)

	case errors.Is(err, common.ErrTxNotConfirmed) && res != nil && res.Pending:
		if wantsJSON(c) {
			c.JSON(http.StatusAccepted, gin.H{"cert_id": res.CertID, "digest": res.Digest, "pending": true})
			return
		}
		c.Redirect(http.StatusSeeOther, back+"?notice="+url.QueryEscape(msgMintPending))

	case errors.Is(err, common.ErrorNotFound):
		if wantsJSON(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgCertNotFound})
			return
		}
		c.Redirect(http.StatusSeeOther, "/dashboard/student")

	case errors.Is(err, common.ErrAlreadyMinted):
		s.fail(c, http.StatusConflict, msgAlreadyMinted)
	case errors.Is(err, common.ErrMintInProgress):
		s.fail(c, http.StatusConflict, msgMintInProgress)
	case errors.Is(err, common.ErrorForbidden):
		s.fail(c, http.StatusForbidden, msgForbidden)
	default:
		s.internal(c, "mint failed", err)
	}
}

// certViewer is public. It shows a recorded certificate for a verification
// token or a transaction digest, or an empty lookup form.
func (s *Server) certViewer(c *gin.Context) {
	token, digest := c.Query("token"), c.Query("digest")
	data := gin.H{"Title": "Cert Viewer", "Digest": digest}

	if token == "" && digest == "" {
		s.page(c, http.StatusOK, "cert_viewer.html", data)
		return
	}

	ctx := c.Request.Context()
	var (
		view *models.CertView
		err  error
	)
	if token != "" {
		view, err = s.deps.Certs.ViewByToken(ctx, token)
	} else {
		view, err = s.deps.Certs.ViewByDigest(ctx, digest)
	}

	code := http.StatusOK
	switch {
	case err == nil:
		data["Cert"] = view
	case errors.Is(err, common.ErrInvalidToken):
		code, data["Error"] = http.StatusBadRequest, msgInvalidLink
	case errors.Is(err, common.ErrorNotFound):
		code, data["Error"] = http.StatusNotFound, msgCertNotFound
	default:
		s.internal(c, "certificate lookup failed", err)
		return
	}

	if wantsJSON(c) {
		if err != nil {
			c.JSON(code, gin.H{"error": data["Error"]})
			return
		}
		c.JSON(code, view)
		return
	}
	s.page(c, code, "cert_viewer.html", data)
}
