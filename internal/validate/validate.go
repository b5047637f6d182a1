// Package validate checks audit inputs before any stage runs.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/rotisserie/eris"
)

// MaxReportBytes bounds the report text accepted for one audit
const MaxReportBytes = 64 * 1024

// ImageMIMETypes lists the image formats the pipeline accepts
var ImageMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
	"image/gif":  true,
}

var extensionMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// inputValidate is the shared validator instance with custom tags registered.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())
	_ = inputValidate.RegisterValidation("notblank", validators.NotBlank)
	_ = inputValidate.RegisterValidation("imagemime", validateImageMIME)
}

func validateImageMIME(fl validator.FieldLevel) bool {
	return ImageMIMETypes[fl.Field().String()]
}

// Struct validates v against its `validate` tags. Violations are reported as a
// single error listing "field: rule" pairs in field order.
func Struct(v any) error {
	err := inputValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "validate")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	sort.Strings(msgs)
	return eris.New("validate: " + strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return field + ": is required"
	case "imagemime":
		return fmt.Sprintf("%s: unsupported image type %q", field, fe.Value())
	case "max":
		return fmt.Sprintf("%s: exceeds %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}

// DetectImageMIME sniffs the image type from its bytes, falling back to the
// file extension when the content is not recognized.
func DetectImageMIME(data []byte, filename string) string {
	if len(data) > 0 {
		if mt := mimetype.Detect(data); ImageMIMETypes[mt.String()] {
			return mt.String()
		}
	}
	return extensionMIME[strings.ToLower(filepath.Ext(filename))]
}

// IsImageFile reports whether a file name has a supported image extension
func IsImageFile(name string) bool {
	_, ok := extensionMIME[strings.ToLower(filepath.Ext(name))]
	return ok
}
