package common

import (
	"github.com/google/uuid"
)

// NewTemplateID generates a unique template ID with the "tpl_" prefix
// Format: tpl_<uuid>
func NewTemplateID() string {
	return "tpl_" + uuid.New().String()
}

// NewSecretID generates a unique secret ID with the "sec_" prefix
func NewSecretID() string {
	return "sec_" + uuid.New().String()
}

// NewAnalysisID generates a unique analysis run ID with the "run_" prefix
func NewAnalysisID() string {
	return "run_" + uuid.New().String()
}
