package handlers

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/xela-labs45/firstChoiceCoverPages/db"
	"github.com/xela-labs45/firstChoiceCoverPages/docx"
	"github.com/xela-labs45/firstChoiceCoverPages/models"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// APIHandler holds the dependencies for API handlers: the preset store and
// the configured template location.
type APIHandler struct {
	Store        *db.RedisService
	TemplatePath string
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(store *db.RedisService, templatePath string) *APIHandler {
	return &APIHandler{
		Store:        store,
		TemplatePath: templatePath,
	}
}

// --- Template Handlers ---

// TemplateStatus handles GET /api/template. It reports whether the
// configured template exists and which placeholder tags were found.
func (h *APIHandler) TemplateStatus(c *gin.Context) {
	t, err := docx.OpenTemplate(h.TemplatePath)
	if err != nil {
		if errors.Is(err, docx.ErrTemplateMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found", "path": h.TemplatePath})
			return
		}
		log.Printf("Error opening template %s: %v", h.TemplatePath, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open template"})
		return
	}
	defer t.Close()

	formats, scanErr := t.Scan()
	missing := []string{}
	for _, tag := range docx.RequiredTags {
		if _, ok := formats[tag]; !ok {
			missing = append(missing, docx.Placeholder(tag))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"path":         h.TemplatePath,
		"ready":        scanErr == nil,
		"placeholders": formats,
		"missing":      missing,
	})
}

// UploadTemplate handles POST /api/template. The uploaded file replaces the
// configured template after it has been verified to open and scan.
func (h *APIHandler) UploadTemplate(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received template upload: %s", header.Filename)

	tmp, err := os.CreateTemp(filepath.Dir(h.TemplatePath), "upload_*.docx")
	if err != nil {
		log.Printf("Error creating temp file for upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded template"})
		return
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.Printf("Error writing uploaded template: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded template"})
		return
	}
	tmp.Close()

	// Verify before replacing the active template, so a bad upload cannot
	// break generation.
	t, err := docx.OpenTemplate(tmpName)
	if err != nil {
		os.Remove(tmpName)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Uploaded file is not a usable template: " + err.Error()})
		return
	}
	_, scanErr := t.Scan()
	t.Close()
	if scanErr != nil {
		os.Remove(tmpName)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": scanErr.Error()})
		return
	}

	if err := os.Rename(tmpName, h.TemplatePath); err != nil {
		os.Remove(tmpName)
		log.Printf("Error replacing template %s: %v", h.TemplatePath, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replace template"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template replaced", "path": h.TemplatePath})
}

// --- Generation Handlers ---

// Generate handles POST /api/generate. It renders one document for the
// submitted student, one page per subject, and returns it as an attachment.
func (h *APIHandler) Generate(c *gin.Context) {
	var req models.CoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.generateOne(req.StudentRecord, req.Subjects)
	if err != nil {
		h.respondGenerateError(c, err)
		return
	}

	filename := req.OutputFilename()
	log.Printf("Generated %d cover pages for %s %s (%s)", len(req.Subjects), req.Name, req.Surname, filename)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, docxContentType, data)
}

// GenerateForClass handles POST /api/classes/:classId/generate. It renders
// one document per roster student and returns them in a zip archive.
func (h *APIHandler) GenerateForClass(c *gin.Context) {
	classID := c.Param("classId")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID is required"})
		return
	}

	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	clazz, err := h.Store.GetClassByID(classID)
	if err != nil {
		log.Printf("Error in GenerateForClass handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve class details"})
		return
	}
	if clazz == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	students, err := h.Store.GetStudentsByClassID(classID)
	if err != nil {
		log.Printf("Error retrieving roster for class %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve class roster"})
		return
	}
	if len(students) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Class roster is empty"})
		return
	}

	// Validate once against the first roster entry; the remaining records
	// differ only in name fields coming from the roster.
	if err := (models.CoverRequest{
		StudentRecord: students[0].Record(*clazz, req.Year),
		Subjects:      req.Subjects,
	}).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := docx.OpenTemplate(h.TemplatePath)
	if err != nil {
		h.respondGenerateError(c, err)
		return
	}
	defer t.Close()

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	for _, student := range students {
		record := student.Record(*clazz, req.Year)
		data, err := t.Generate(record.Replacements(), req.Subjects)
		if err != nil {
			h.respondGenerateError(c, err)
			return
		}
		entry, err := archive.Create(record.OutputFilename())
		if err != nil {
			log.Printf("Error creating archive entry for %s: %v", record.OutputFilename(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build archive"})
			return
		}
		if _, err := entry.Write(data); err != nil {
			log.Printf("Error writing archive entry for %s: %v", record.OutputFilename(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build archive"})
			return
		}
	}
	if err := archive.Close(); err != nil {
		log.Printf("Error finalizing archive for class %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build archive"})
		return
	}

	filename := models.SanitizeFilePart(clazz.Name) + "_Cover_Pages.zip"
	log.Printf("Generated cover pages for %d students of class %s", len(students), clazz.Name)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// generateOne runs the full scan-substitute-assemble cycle for one student.
func (h *APIHandler) generateOne(record models.StudentRecord, subjects []string) ([]byte, error) {
	t, err := docx.OpenTemplate(h.TemplatePath)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Generate(record.Replacements(), subjects)
}

// respondGenerateError maps engine errors to HTTP responses. Template and
// placeholder problems are the user's to fix, so they surface verbatim.
func (h *APIHandler) respondGenerateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, docx.ErrTemplateMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Template not found. Upload one or place it at the configured path."})
	case errors.Is(err, docx.ErrPlaceholderMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Printf("Error generating cover pages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate cover pages"})
	}
}

// --- Subject Handlers ---

// GetSubjects handles GET /api/subjects
func (h *APIHandler) GetSubjects(c *gin.Context) {
	subjects, err := h.Store.GetSubjects()
	if err != nil {
		log.Printf("Error in GetSubjects handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve subjects"})
		return
	}
	c.JSON(http.StatusOK, subjects)
}

// AddSubject handles POST /api/subjects
func (h *APIHandler) AddSubject(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Subject name is required"})
		return
	}

	if err := h.Store.AddSubject(body.Name); err != nil {
		log.Printf("Error in AddSubject handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add subject"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": body.Name})
}

// --- Class Handlers ---

// GetAllClasses handles GET /api/classes
func (h *APIHandler) GetAllClasses(c *gin.Context) {
	classes, err := h.Store.GetAllClasses()
	if err != nil {
		log.Printf("Error in GetAllClasses handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve classes"})
		return
	}
	if classes == nil {
		// Return empty list instead of null for JSON consistency
		c.JSON(http.StatusOK, []models.Clazz{})
		return
	}
	c.JSON(http.StatusOK, classes)
}

// GetClassByID handles GET /api/classes/:classId
func (h *APIHandler) GetClassByID(c *gin.Context) {
	classID := c.Param("classId")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID is required"})
		return
	}

	clazz, err := h.Store.GetClassByID(classID)
	if err != nil {
		log.Printf("Error in GetClassByID handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve class details"})
		return
	}

	if clazz == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	c.JSON(http.StatusOK, clazz)
}

// AddClass handles POST /api/classes
func (h *APIHandler) AddClass(c *gin.Context) {
	var newClass models.Clazz
	if err := c.ShouldBindJSON(&newClass); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if newClass.ID == "" || newClass.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID and Name are required"})
		return
	}

	err := h.Store.AddClass(newClass)
	if err != nil {
		log.Printf("Error in AddClass handler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add class"})
		return
	}

	c.JSON(http.StatusCreated, newClass)
}

// GetStudentsByClass handles GET /api/classes/:classId/students
func (h *APIHandler) GetStudentsByClass(c *gin.Context) {
	classID := c.Param("classId")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID is required"})
		return
	}

	exists, err := h.Store.ClassExists(classID)
	if err != nil {
		log.Printf("Error checking class existence in GetStudentsByClass handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify class"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	students, err := h.Store.GetStudentsByClassID(classID)
	if err != nil {
		log.Printf("Error in GetStudentsByClass handler for ID %s: %v", classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve students for the class"})
		return
	}
	if students == nil {
		c.JSON(http.StatusOK, []models.Student{})
		return
	}

	c.JSON(http.StatusOK, students)
}

// --- Import Handler ---

// ImportStudents handles POST /api/import/students
func (h *APIHandler) ImportStudents(c *gin.Context) {
	// Get classId from form data
	classID := c.PostForm("classId")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'classId' in form data"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		log.Printf("Error getting form file: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	log.Printf("Received roster upload: %s for class: %s", header.Filename, classID)

	importedCount, err := h.Store.ImportRosterFromExcel(file, classID)
	if err != nil {
		log.Printf("Error importing roster from file %s for class %s: %v", header.Filename, classID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import students: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": importedCount,
		"classId":       classID,
	})
}

// --- Ping Handler ---
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}
