package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput marks validation failures on a generation request.
// Handlers check it with errors.Is and block generation.
var ErrEmptyInput = errors.New("empty input")

// StudentRecord holds the details printed on every cover page.
// Year is free text and passes through without locale formatting.
type StudentRecord struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Class   string `json:"class"`
	Year    string `json:"year"`
}

// Validate checks that all record fields are filled in.
func (r StudentRecord) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"surname", r.Surname},
		{"class", r.Class},
		{"year", r.Year},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrEmptyInput, f.name)
		}
	}
	return nil
}

// Replacements maps placeholder tags to the record's values. Subject is
// resolved per page by the assembler, not here.
func (r StudentRecord) Replacements() map[string]string {
	return map[string]string{
		"Name":    r.Name,
		"Surname": r.Surname,
		"Class":   r.Class,
		"Year":    r.Year,
	}
}

// CoverRequest is one generation call: a student plus the subjects to
// generate cover pages for, in selection order. Duplicates are allowed and
// produce duplicate pages.
type CoverRequest struct {
	StudentRecord
	Subjects []string `json:"subjects"`
}

// Validate checks the student fields and the subject list.
func (cr CoverRequest) Validate() error {
	if err := cr.StudentRecord.Validate(); err != nil {
		return err
	}
	if len(cr.Subjects) == 0 {
		return fmt.Errorf("%w: at least one subject is required", ErrEmptyInput)
	}
	for _, s := range cr.Subjects {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: subject names must not be blank", ErrEmptyInput)
		}
	}
	return nil
}

// BatchRequest drives a whole-class run: one document per roster student,
// all with the same year and subject list.
type BatchRequest struct {
	Year     string   `json:"year"`
	Subjects []string `json:"subjects"`
}

// Clazz represents a class
type Clazz struct {
	ID   string `json:"id"`   // Unique class ID
	Name string `json:"name"` // Class name
}

// Student is one roster entry within a class.
type Student struct {
	ID      string `json:"id"`      // Unique student ID
	Name    string `json:"name"`    // First name
	Surname string `json:"surname"` // Surname
	ClassID string `json:"classId"` // ID of the class the student belongs to
}

// Record builds the StudentRecord for a roster student in a batch run.
func (s Student) Record(class Clazz, year string) StudentRecord {
	return StudentRecord{
		Name:    s.Name,
		Surname: s.Surname,
		Class:   class.Name,
		Year:    year,
	}
}

// OutputFilename builds the download name for a single-student document,
// e.g. "Ana_Popescu_10B_Cover_Pages.docx".
func (r StudentRecord) OutputFilename() string {
	base := SanitizeFilePart(r.Name+"_"+r.Surname) + "_" + SanitizeFilePart(r.Class)
	return base + "_Cover_Pages.docx"
}

// SanitizeFilePart keeps letters, digits, spaces, '_' and '-', then folds
// spaces into underscores so the result is safe as a filename component.
func SanitizeFilePart(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '_', c == '-':
			b.WriteRune(c)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}
