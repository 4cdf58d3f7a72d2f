package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/educhain/internal/common"
	"github.com/dmitrijs2005/educhain/internal/server/services"
	"github.com/gin-gonic/gin"
)

// maxFieldBytes bounds a single non-file form field.
const maxFieldBytes = 64 << 10

const msgMissingFields = "Missing fields"

type courseForm struct {
	Name          string
	Description   string
	StudentEmails string
}

func (s *Server) issuerDashboard(c *gin.Context) {
	ident := identity(c)
	courses, err := s.deps.Courses.ListForIssuer(c.Request.Context(), ident.ID)
	if err != nil {
		s.internal(c, "issuer dashboard failed", err)
		return
	}
	s.page(c, http.StatusOK, "issuer_dashboard.html", gin.H{"Title": "Dashboard", "Courses": courses})
}

func (s *Server) newCoursePage(c *gin.Context) {
	s.page(c, http.StatusOK, "issuer_new_course.html", gin.H{"Title": "Create Course"})
}

func (s *Server) issuerCourse(c *gin.Context) {
	const back = "/dashboard/issuer"

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Redirect(http.StatusFound, back)
		return
	}
	ic, err := s.deps.Courses.GetForIssuer(c.Request.Context(), id, identity(c).ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			c.Redirect(http.StatusFound, back)
			return
		}
		s.internal(c, "issuer course lookup failed", err)
		return
	}
	s.page(c, http.StatusOK, "issuer_course_detail.html", gin.H{"Title": "Course Detail", "Course": ic.Course, "Certs": ic.Certs})
}

func (s *Server) studentDashboard(c *gin.Context) {
	courses, err := s.deps.Courses.ListForStudent(c.Request.Context(), identity(c).Email)
	if err != nil {
		s.internal(c, "student dashboard failed", err)
		return
	}
	s.page(c, http.StatusOK, "student_dashboard.html", gin.H{"Title": "Dashboard", "Courses": courses})
}

func (s *Server) studentCourse(c *gin.Context) {
	const back = "/dashboard/student"

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.Redirect(http.StatusFound, back)
		return
	}
	sc, err := s.deps.Courses.GetForStudent(c.Request.Context(), id, identity(c).Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			c.Redirect(http.StatusFound, back)
			return
		}
		s.internal(c, "student course lookup failed", err)
		return
	}
	s.page(c, http.StatusOK, "student_course_detail.html", gin.H{
		"Title":  "Course Detail",
		"Course": sc,
		"Notice": c.Query("notice"),
	})
}

// createCourse consumes the multipart body part by part. The image, if
// any, is streamed to the upload store without buffering it in memory.
func (s *Server) createCourse(c *gin.Context) {
	ctx := c.Request.Context()
	ident := identity(c)

	if s.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	}

	mr, err := c.Request.MultipartReader()
	if err != nil {
		s.courseFormError(c, http.StatusBadRequest, courseForm{}, msgBadRequest)
		return
	}

	var (
		form    courseForm
		image   string
		partErr error
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			partErr = err
			break
		}

		if part.FileName() != "" {
			if part.FormName() != "course_image" || image != "" {
				_, _ = io.Copy(io.Discard, part)
				part.Close()
				continue
			}
			ref, err := s.deps.Uploads.Save(ctx, part.FileName(), part.Header.Get("Content-Type"), part)
			part.Close()
			if err != nil {
				s.logger.Error(ctx, "image upload failed", "error", err)
				s.courseFormError(c, http.StatusInternalServerError, form, msgInternal)
				return
			}
			image = ref
			continue
		}

		val, err := readField(part)
		part.Close()
		if err != nil {
			partErr = err
			break
		}
		switch part.FormName() {
		case "course_name":
			form.Name = strings.TrimSpace(val)
		case "course_description":
			form.Description = strings.TrimSpace(val)
		case "student_emails":
			form.StudentEmails = strings.TrimSpace(val)
		}
	}
	if partErr != nil {
		s.logger.Warn(ctx, "malformed course form", "error", partErr)
		s.courseFormError(c, http.StatusBadRequest, form, msgBadRequest)
		return
	}

	if form.Name == "" || form.Description == "" || form.StudentEmails == "" {
		s.courseFormError(c, http.StatusBadRequest, form, msgMissingFields)
		return
	}

	course, err := s.deps.Courses.Create(ctx, services.CreateCourseInput{
		IssuerID:      ident.ID,
		Name:          form.Name,
		Description:   form.Description,
		Image:         image,
		StudentEmails: form.StudentEmails,
	})
	if err != nil {
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			s.courseFormError(c, http.StatusBadRequest, form, ve.Message)
			return
		}
		s.logger.Error(ctx, "course creation failed", "error", err)
		s.courseFormError(c, http.StatusInternalServerError, form, msgInternal)
		return
	}

	s.deps.Metrics.CoursesCreated.Inc()

	if wantsJSON(c) {
		c.JSON(http.StatusCreated, gin.H{"id": course.ID})
		return
	}
	c.Redirect(http.StatusSeeOther, "/dashboard/issuer")
}

// courseFormError re-renders the creation form with what the issuer typed.
func (s *Server) courseFormError(c *gin.Context, code int, form courseForm, msg string) {
	if wantsJSON(c) {
		c.JSON(code, gin.H{"error": msg})
		return
	}
	s.page(c, code, "issuer_new_course.html", gin.H{"Title": "Create Course", "Error": msg, "Form": form})
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("form field exceeds %d bytes", maxFieldBytes)
	}
	return string(b), nil
}
